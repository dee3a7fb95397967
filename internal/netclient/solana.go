package netclient

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/emberwallet/ember-core/pkg/types"
)

// lamportsPerSignature is the flat network fee per signature. Solana fees
// do not float with load the way gas markets do.
const lamportsPerSignature = 5000

// historyLimit caps how many signatures a history query resolves.
const historyLimit = 50

// SolanaClient wraps the Solana JSON-RPC client. Retry behavior for
// Solana lives in the rpc library's HTTP layer; the per-call timeout is
// enforced through contexts here.
type SolanaClient struct {
	rpc     *rpc.Client
	timeout time.Duration
}

// NewSolanaClient creates a client for the given Solana RPC endpoint.
func NewSolanaClient(endpoint string, cfg Config) *SolanaClient {
	cfg = cfg.withDefaults()
	return &SolanaClient{
		rpc:     rpc.New(endpoint),
		timeout: cfg.Timeout,
	}
}

func (c *SolanaClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// FetchBalance returns the account balance in lamports.
func (c *SolanaClient) FetchBalance(ctx context.Context, address string) (*big.Int, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("solana: %w: bad address %q", ErrInvalidResponse, address)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	out, err := c.rpc.GetBalance(ctx, pubkey, rpc.CommitmentConfirmed)
	if err != nil {
		return nil, fmt.Errorf("solana: get balance: %w", wrapSolanaErr(err))
	}
	return new(big.Int).SetUint64(out.Value), nil
}

// RecentBlockhash returns the latest finalized blockhash. Transactions
// anchored to it stay broadcastable for the liveness window (~60-90s).
func (c *SolanaClient) RecentBlockhash(ctx context.Context) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("solana: get blockhash: %w", wrapSolanaErr(err))
	}
	return out.Value.Blockhash.String(), nil
}

// MinimumRentExemption returns the lamports an account of the given size
// must hold to be rent-exempt.
func (c *SolanaClient) MinimumRentExemption(ctx context.Context, dataSize uint64) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	lamports, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, dataSize, rpc.CommitmentFinalized)
	if err != nil {
		return 0, fmt.Errorf("solana: get rent exemption: %w", wrapSolanaErr(err))
	}
	return lamports, nil
}

// FetchFeeRates returns the flat per-signature fee for every tier.
func (c *SolanaClient) FetchFeeRates(context.Context) (types.FeeRates, error) {
	return types.FeeRates{
		Slow:   lamportsPerSignature,
		Normal: lamportsPerSignature,
		Fast:   lamportsPerSignature,
	}, nil
}

// FetchTransactionHistory resolves recent signatures for the address into
// net balance movements.
func (c *SolanaClient) FetchTransactionHistory(ctx context.Context, address string) ([]types.HistoryEntry, error) {
	pubkey, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("solana: %w: bad address %q", ErrInvalidResponse, address)
	}

	limit := historyLimit
	sigs, err := func() ([]*rpc.TransactionSignature, error) {
		ctx, cancel := c.withTimeout(ctx)
		defer cancel()
		return c.rpc.GetSignaturesForAddressWithOpts(ctx, pubkey, &rpc.GetSignaturesForAddressOpts{
			Limit: &limit,
		})
	}()
	if err != nil {
		return nil, fmt.Errorf("solana: get signatures: %w", wrapSolanaErr(err))
	}

	entries := make([]types.HistoryEntry, 0, len(sigs))
	for _, sig := range sigs {
		if sig.Err != nil {
			continue
		}
		entry, err := c.resolveEntry(ctx, pubkey, sig)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			entries = append(entries, *entry)
		}
	}
	return entries, nil
}

// resolveEntry turns one signature into a history entry via the pre/post
// balance deltas recorded in transaction metadata.
func (c *SolanaClient) resolveEntry(ctx context.Context, owner solana.PublicKey, sig *rpc.TransactionSignature) (*types.HistoryEntry, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	maxVersion := uint64(0)
	out, err := c.rpc.GetTransaction(ctx, sig.Signature, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("solana: get transaction: %w", wrapSolanaErr(err))
	}
	if out.Meta == nil {
		return nil, nil
	}
	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("solana: %w: decode transaction: %v", ErrInvalidResponse, err)
	}

	ownerIdx := -1
	for i, key := range tx.Message.AccountKeys {
		if key.Equals(owner) {
			ownerIdx = i
			break
		}
	}
	if ownerIdx < 0 || ownerIdx >= len(out.Meta.PreBalances) {
		return nil, nil
	}

	delta := int64(out.Meta.PostBalances[ownerIdx]) - int64(out.Meta.PreBalances[ownerIdx])
	counterparty := ""
	for i, key := range tx.Message.AccountKeys {
		if i != ownerIdx && !key.IsZero() {
			counterparty = key.String()
			break
		}
	}

	entry := &types.HistoryEntry{
		TxID:     sig.Signature.String(),
		Incoming: delta > 0,
	}
	if sig.BlockTime != nil {
		entry.Timestamp = sig.BlockTime.Time().UTC()
	}
	if delta >= 0 {
		entry.From = counterparty
		entry.To = owner.String()
		entry.Amount = big.NewInt(delta)
	} else {
		entry.From = owner.String()
		entry.To = counterparty
		entry.Amount = big.NewInt(-delta)
	}
	return entry, nil
}

// BroadcastTransaction submits serialized signed transaction bytes and
// returns the base58 signature.
func (c *SolanaClient) BroadcastTransaction(ctx context.Context, raw []byte) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	sig, err := c.rpc.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return "", fmt.Errorf("solana: send transaction: %w", wrapSolanaErr(err))
	}
	return sig.String(), nil
}

// FetchUTXOs is not meaningful on an account-model chain.
func (c *SolanaClient) FetchUTXOs(context.Context, string) ([]types.UTXO, error) {
	return nil, fmt.Errorf("solana: utxo query: %w", ErrUnsupported)
}

func wrapSolanaErr(err error) error {
	if ctxErr := wrapCtxErr(err); ctxErr != err {
		return ctxErr
	}
	return err
}
