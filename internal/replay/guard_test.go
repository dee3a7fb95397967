package replay

import (
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/emberwallet/ember-core/pkg/types"
)

func testTx(from string, nonce uint64, at time.Time) *types.UnsignedTx {
	return &types.UnsignedTx{
		Chain:     types.ChainEthereum,
		Network:   types.Testnet,
		From:      from,
		To:        "0x000000000000000000000000000000000000dEaD",
		Amount:    big.NewInt(1_000_000),
		Nonce:     nonce,
		Timestamp: at,
	}
}

// newTestGuard pins the clock so timestamp checks are deterministic.
func newTestGuard(opts ...Option) (*Guard, time.Time) {
	now := time.Unix(1_700_000_000, 0)
	g := NewGuard(opts...)
	g.now = func() time.Time { return now }
	return g, now
}

func TestAdmit_DuplicateRejected(t *testing.T) {
	g, now := newTestGuard()
	tx := testTx("0xabc", 1, now)

	if err := g.Admit(tx); err != nil {
		t.Fatalf("first Admit() error: %v", err)
	}
	if err := g.Admit(tx); !errors.Is(err, ErrDuplicateTransaction) {
		t.Errorf("second Admit() error = %v, want ErrDuplicateTransaction", err)
	}
}

func TestAdmit_NonceMonotonicity(t *testing.T) {
	g, now := newTestGuard()

	if err := g.Admit(testTx("0xabc", 5, now)); err != nil {
		t.Fatalf("Admit(nonce 5) error: %v", err)
	}

	tests := []struct {
		nonce   uint64
		wantErr error
	}{
		{5, ErrInvalidNonce},  // equal to high-water mark
		{3, ErrInvalidNonce},  // below high-water mark
		{7, nil},              // skipping forward is allowed
		{8, nil},              // strictly increasing
		{8, ErrInvalidNonce},  // reuse after admission
	}
	for _, tt := range tests {
		err := g.Admit(testTx("0xabc", tt.nonce, now.Add(time.Duration(tt.nonce)*time.Second)))
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("Admit(nonce %d) error = %v, want %v", tt.nonce, err, tt.wantErr)
		}
	}

	if high, ok := g.HighestNonce("0xabc"); !ok || high != 8 {
		t.Errorf("HighestNonce() = %d, %v, want 8, true", high, ok)
	}
}

func TestAdmit_NoncesTrackedPerSender(t *testing.T) {
	g, now := newTestGuard()

	if err := g.Admit(testTx("0xaaa", 9, now)); err != nil {
		t.Fatalf("Admit(sender a) error: %v", err)
	}
	// A lower nonce from a different sender is unrelated state.
	if err := g.Admit(testTx("0xbbb", 2, now)); err != nil {
		t.Errorf("Admit(sender b) error: %v", err)
	}
}

func TestAdmit_NonceJumpBound(t *testing.T) {
	g, now := newTestGuard(WithMaxNonceJump(10))

	if err := g.Admit(testTx("0xabc", 100, now)); err != nil {
		t.Fatalf("first Admit() error: %v", err)
	}
	if err := g.Admit(testTx("0xabc", 110, now.Add(time.Second))); err != nil {
		t.Errorf("Admit(jump of 10) error: %v", err)
	}
	if err := g.Admit(testTx("0xabc", 121, now.Add(2*time.Second))); !errors.Is(err, ErrInvalidNonce) {
		t.Errorf("Admit(jump of 11) error = %v, want ErrInvalidNonce", err)
	}
}

func TestAdmit_TimestampWindow(t *testing.T) {
	g, now := newTestGuard()

	tests := []struct {
		name    string
		at      time.Time
		wantErr error
	}{
		{"current", now, nil},
		{"edge of past window", now.Add(-5 * time.Minute), nil},
		{"edge of future window", now.Add(5 * time.Minute), nil},
		{"stale", now.Add(-5*time.Minute - time.Second), ErrTimestampOutOfRange},
		{"future", now.Add(5*time.Minute + time.Second), ErrTimestampOutOfRange},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Admit(testTx("0xabc", uint64(i+1), tt.at))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Admit() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAdmit_RejectionDoesNotAdvanceNonce(t *testing.T) {
	g, now := newTestGuard(WithMaxNonceJump(10))

	if err := g.Admit(testTx("0xabc", 1, now)); err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	// An over-jump rejection must not move the high-water mark.
	if err := g.Admit(testTx("0xabc", 500, now)); !errors.Is(err, ErrInvalidNonce) {
		t.Fatalf("Admit(over-jump) error = %v, want ErrInvalidNonce", err)
	}
	if err := g.Admit(testTx("0xabc", 2, now.Add(time.Second))); err != nil {
		t.Errorf("Admit(nonce 2) after rejection error: %v", err)
	}
}

func TestAdmit_SeenSetCapacityBounded(t *testing.T) {
	g, now := newTestGuard(WithMaxSeenTxIDs(4))

	first := testTx("0xabc", 1, now)
	if err := g.Admit(first); err != nil {
		t.Fatalf("Admit() error: %v", err)
	}
	// Fill past capacity from distinct senders so eviction is txid-driven.
	for i := 0; i < 4; i++ {
		tx := testTx(fmt.Sprintf("0xsender%d", i), 1, now)
		if err := g.Admit(tx); err != nil {
			t.Fatalf("Admit(filler %d) error: %v", i, err)
		}
	}
	if len(g.seen) != 4 || len(g.order) != 4 {
		t.Fatalf("seen set size = %d/%d, want 4/4", len(g.seen), len(g.order))
	}

	// The evicted txid is admissible again apart from the nonce rule.
	if _, stillSeen := g.seen[TxID(first)]; stillSeen {
		t.Error("oldest txid not evicted at capacity")
	}
}

func TestAdmit_BitcoinSkipsNonceRule(t *testing.T) {
	g, now := newTestGuard()

	a := testTx("bc1qsender", 0, now)
	a.Chain = types.ChainBitcoin
	b := testTx("bc1qsender", 0, now.Add(time.Second))
	b.Chain = types.ChainBitcoin

	if err := g.Admit(a); err != nil {
		t.Fatalf("Admit(first) error: %v", err)
	}
	// UTXO chains carry no account nonce; distinct transfers with nonce 0
	// must both pass, while true duplicates still trip the txid check.
	if err := g.Admit(b); err != nil {
		t.Errorf("Admit(second) error: %v", err)
	}
	if err := g.Admit(a); !errors.Is(err, ErrDuplicateTransaction) {
		t.Errorf("Admit(duplicate) error = %v, want ErrDuplicateTransaction", err)
	}
}

func TestTxID_FieldFraming(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := testTx("0xab", 1, now)
	a.To = "0xc"
	b := testTx("0xa", 1, now)
	b.To = "0xbc"
	if TxID(a) == TxID(b) {
		t.Error("shifting bytes across field boundaries must change the txid")
	}
}
