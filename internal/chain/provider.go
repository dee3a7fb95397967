// Package chain assembles, signs and estimates transfers per blockchain
// family behind a single Provider contract.
package chain

import (
	"context"
	"errors"
	"math/big"

	"github.com/emberwallet/ember-core/internal/hdkey"
	"github.com/emberwallet/ember-core/pkg/types"
)

// Builder errors.
var (
	ErrInvalidAddress       = errors.New("invalid address")
	ErrInvalidTransaction   = errors.New("invalid transaction")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrUnsupportedOperation = errors.New("unsupported operation")
)

// Provider builds and signs transfers for one chain family. Build
// operations query the network for fee-market and account data but never
// mutate wallet state; Sign is fully offline given a built transaction.
type Provider interface {
	// Chain identifies the family this provider serves.
	Chain() types.Chain

	// BuildTransfer validates the transfer and produces an unsigned
	// transaction with chain-appropriate fee defaults.
	BuildTransfer(ctx context.Context, from, to string, amount *big.Int) (*types.UnsignedTx, error)

	// BuildTokenTransfer builds a token transfer (ERC-20 / SPL). Chains
	// without a token model fail with ErrUnsupportedOperation.
	BuildTokenTransfer(ctx context.Context, from, to, token string, amount *big.Int) (*types.UnsignedTx, error)

	// EstimateCost returns a fee estimate for a prospective transfer
	// from current fee-market data.
	EstimateCost(ctx context.Context, from, to string, amount *big.Int) (*types.FeeEstimate, error)

	// Sign signs a built transaction with the derived account key and
	// returns the broadcastable wire form.
	Sign(ctx context.Context, tx *types.UnsignedTx, key *hdkey.HDKey) (*types.SignedTx, error)

	// ValidateAddress reports whether an address is well-formed for this
	// chain and network.
	ValidateAddress(addr string) bool
}
