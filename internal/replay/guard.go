// Package replay rejects duplicate, stale and out-of-order transactions
// before broadcast. It is the only cross-call mutable state in the signing
// pipeline; all access goes through Admit under the guard's own lock.
package replay

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/emberwallet/ember-core/internal/log"
	"github.com/emberwallet/ember-core/pkg/crypto"
	"github.com/emberwallet/ember-core/pkg/types"
)

// Guard errors.
var (
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrInvalidNonce         = errors.New("invalid nonce")
	ErrTimestampOutOfRange  = errors.New("timestamp out of range")
)

// Defaults, overridable through config.
const (
	DefaultWindow       = 5 * time.Minute
	DefaultMaxSeenTxIDs = 4096
	DefaultMaxNonceJump = 1024
)

// Guard tracks per-sender nonce high-water marks and a bounded set of
// recently admitted transaction ids.
type Guard struct {
	mu sync.Mutex

	window       time.Duration
	maxSeen      int
	maxNonceJump uint64

	// highest holds the highest admitted nonce per sender. Presence in the
	// map means at least one transaction was admitted for that sender.
	highest map[string]uint64

	// seen plus order form a capacity-bounded FIFO of admitted txids.
	seen  map[types.Hash]struct{}
	order []types.Hash

	now func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithWindow sets the timestamp tolerance window.
func WithWindow(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.window = d
		}
	}
}

// WithMaxSeenTxIDs caps the recently-seen txid set.
func WithMaxSeenTxIDs(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.maxSeen = n
		}
	}
}

// WithMaxNonceJump bounds how far ahead of the high-water mark a nonce may
// skip. Unbounded skipping would let a hostile counterparty grow nonce
// state without limit.
func WithMaxNonceJump(n uint64) Option {
	return func(g *Guard) {
		if n > 0 {
			g.maxNonceJump = n
		}
	}
}

// NewGuard creates a guard with the default window and capacity bounds.
func NewGuard(opts ...Option) *Guard {
	g := &Guard{
		window:       DefaultWindow,
		maxSeen:      DefaultMaxSeenTxIDs,
		maxNonceJump: DefaultMaxNonceJump,
		highest:      make(map[string]uint64),
		seen:         make(map[types.Hash]struct{}),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TxID computes the canonical transaction id over the replay-relevant
// fields. Length framing in HashFields keeps field boundaries fixed, so
// (from="ab", to="c") and (from="a", to="bc") hash differently.
func TxID(tx *types.UnsignedTx) types.Hash {
	amount := tx.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	var ts [8]byte
	sec := tx.Timestamp.Unix()
	for i := 7; i >= 0; i-- {
		ts[i] = byte(sec)
		sec >>= 8
	}
	var nonce [8]byte
	n := tx.Nonce
	for i := 7; i >= 0; i-- {
		nonce[i] = byte(n)
		n >>= 8
	}
	return crypto.HashFields(
		[]byte(tx.Chain),
		[]byte(tx.From),
		[]byte(tx.To),
		amount.Bytes(),
		nonce[:],
		ts[:],
	)
}

// Admit validates a transaction against the duplicate, nonce and timestamp
// rules, recording it on success. Rejections leave the guard state
// untouched, so a corrected resubmission is not penalized.
func (g *Guard) Admit(tx *types.UnsignedTx) error {
	id := TxID(tx)

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.checkTimestamp(tx.Timestamp); err != nil {
		return err
	}

	if _, dup := g.seen[id]; dup {
		log.Replay.Debug().
			Str("txid", id.String()).
			Str("from", tx.From).
			Msg("duplicate transaction rejected")
		return ErrDuplicateTransaction
	}

	if tx.Chain.UsesNonces() {
		if err := g.checkNonce(tx.From, tx.Nonce); err != nil {
			return err
		}
		g.highest[tx.From] = tx.Nonce
	}

	g.remember(id)
	return nil
}

// HighestNonce returns the highest admitted nonce for a sender and whether
// any transaction has been admitted for it.
func (g *Guard) HighestNonce(sender string) (uint64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.highest[sender]
	return n, ok
}

func (g *Guard) checkTimestamp(ts time.Time) error {
	skew := g.now().Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > g.window {
		return fmt.Errorf("%w: skew %s exceeds %s window", ErrTimestampOutOfRange, skew.Round(time.Second), g.window)
	}
	return nil
}

func (g *Guard) checkNonce(sender string, nonce uint64) error {
	high, admitted := g.highest[sender]
	if admitted && nonce <= high {
		return fmt.Errorf("%w: nonce %d not above high-water mark %d", ErrInvalidNonce, nonce, high)
	}
	// Nonces may skip forward within the same mempool window, up to the
	// configured bound. The first admission for a sender has no baseline
	// and is accepted as-is.
	if admitted && nonce-high > g.maxNonceJump {
		return fmt.Errorf("%w: nonce %d jumps %d past high-water mark %d (max %d)",
			ErrInvalidNonce, nonce, nonce-high, high, g.maxNonceJump)
	}
	return nil
}

// remember records a txid, evicting the oldest entry at capacity.
func (g *Guard) remember(id types.Hash) {
	if len(g.order) >= g.maxSeen {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.seen, oldest)
	}
	g.seen[id] = struct{}{}
	g.order = append(g.order, id)
}
