package chain

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"time"

	btcec "github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/emberwallet/ember-core/internal/address"
	"github.com/emberwallet/ember-core/internal/hdkey"
	"github.com/emberwallet/ember-core/internal/log"
	"github.com/emberwallet/ember-core/internal/netclient"
	"github.com/emberwallet/ember-core/pkg/types"
)

const (
	// dustLimit is the minimum economical output value in satoshis.
	// Change below it is folded into the fee.
	dustLimit = 546

	// selectRounds bounds the fee/selection fixpoint iteration.
	selectRounds = 10
)

// BitcoinProvider builds SegWit (P2WPKH) transfers against an Esplora
// indexer.
type BitcoinProvider struct {
	client  *netclient.BitcoinClient
	network types.Network
}

// NewBitcoinProvider creates a provider for the given network.
func NewBitcoinProvider(client *netclient.BitcoinClient, network types.Network) *BitcoinProvider {
	return &BitcoinProvider{client: client, network: network}
}

func (p *BitcoinProvider) Chain() types.Chain { return types.ChainBitcoin }

func (p *BitcoinProvider) params() *chaincfg.Params {
	if p.network == types.Testnet {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}

// ValidateAddress accepts any address form btcd can decode for this
// network (legacy, SegWit).
func (p *BitcoinProvider) ValidateAddress(addr string) bool {
	return address.Validate(addr, types.ChainBitcoin, p.network)
}

// estimateVSize approximates the virtual size of a P2WPKH spend:
// roughly 68 vB per input, 31 per output, 11 of fixed overhead.
func estimateVSize(inputs, outputs int) uint64 {
	return uint64(inputs)*68 + uint64(outputs)*31 + 11
}

// selectFunded runs coin selection with a fee target that depends on the
// input count, iterating until the selection is self-consistent.
func selectFunded(utxos []types.UTXO, amount, feeRate uint64) (*Selection, uint64, error) {
	fee := feeRate * estimateVSize(1, 2)
	var sel *Selection
	for round := 0; round < selectRounds; round++ {
		s, err := SelectCoins(utxos, amount+fee)
		if err != nil {
			return nil, 0, err
		}
		nextFee := feeRate * estimateVSize(len(s.Inputs), 2)
		if nextFee == fee {
			sel = s
			break
		}
		fee = nextFee
	}
	if sel == nil {
		// The loop oscillated; take the last fee and selection.
		s, err := SelectCoins(utxos, amount+fee)
		if err != nil {
			return nil, 0, err
		}
		sel = s
	}
	return sel, fee, nil
}

// BuildTransfer selects UTXOs deterministically and produces an unsigned
// transaction funding amount plus a fee-rate-sized fee at the normal tier.
func (p *BitcoinProvider) BuildTransfer(ctx context.Context, from, to string, amount *big.Int) (*types.UnsignedTx, error) {
	if err := checkTransfer(types.ChainBitcoin, p.network, from, to, amount, nil); err != nil {
		return nil, err
	}
	if !amount.IsUint64() {
		return nil, fmt.Errorf("%w: amount %s exceeds satoshi range", ErrInvalidTransaction, amount)
	}
	sats := amount.Uint64()

	rates, err := p.client.FetchFeeRates(ctx)
	if err != nil {
		return nil, err
	}
	utxos, err := p.client.FetchUTXOs(ctx, from)
	if err != nil {
		return nil, err
	}

	sel, fee, err := selectFunded(utxos, sats, rates.Normal)
	if err != nil {
		return nil, err
	}
	if sel.Change < dustLimit {
		// Sub-dust change is not worth an output.
		fee += sel.Change
	}

	return &types.UnsignedTx{
		Chain:     types.ChainBitcoin,
		Network:   p.network,
		From:      from,
		To:        to,
		Amount:    new(big.Int).Set(amount),
		Timestamp: time.Now().UTC(),
		BitcoinFee: &types.BitcoinFee{
			FeeRate: rates.Normal,
			Fee:     fee,
		},
		Inputs: sel.Inputs,
	}, nil
}

// BuildTokenTransfer always fails: Bitcoin has no token model, and
// silently constructing something unspendable would be worse than an
// error.
func (p *BitcoinProvider) BuildTokenTransfer(context.Context, string, string, string, *big.Int) (*types.UnsignedTx, error) {
	return nil, fmt.Errorf("%w: token transfers on bitcoin", ErrUnsupportedOperation)
}

// EstimateCost sizes the fee from a dry-run coin selection at the normal
// fee-rate tier.
func (p *BitcoinProvider) EstimateCost(ctx context.Context, from, to string, amount *big.Int) (*types.FeeEstimate, error) {
	if err := checkTransfer(types.ChainBitcoin, p.network, from, to, amount, nil); err != nil {
		return nil, err
	}
	if !amount.IsUint64() {
		return nil, fmt.Errorf("%w: amount %s exceeds satoshi range", ErrInvalidTransaction, amount)
	}

	rates, err := p.client.FetchFeeRates(ctx)
	if err != nil {
		return nil, err
	}
	utxos, err := p.client.FetchUTXOs(ctx, from)
	if err != nil {
		return nil, err
	}
	_, fee, err := selectFunded(utxos, amount.Uint64(), rates.Normal)
	if err != nil {
		return nil, err
	}

	return &types.FeeEstimate{
		Chain: types.ChainBitcoin,
		Total: new(big.Int).SetUint64(fee),
		Bitcoin: &types.BitcoinFee{
			FeeRate: rates.Normal,
			Fee:     fee,
		},
	}, nil
}

// Sign builds the wire transaction from the selected inputs and signs
// every input with a SegWit witness. Fully offline.
func (p *BitcoinProvider) Sign(_ context.Context, utx *types.UnsignedTx, key *hdkey.HDKey) (*types.SignedTx, error) {
	if utx.BitcoinFee == nil {
		return nil, fmt.Errorf("%w: missing bitcoin fee parameters", ErrInvalidTransaction)
	}
	if len(utx.Inputs) == 0 {
		return nil, fmt.Errorf("%w: no inputs selected", ErrInvalidTransaction)
	}

	fromScript, err := p.payScript(utx.From)
	if err != nil {
		return nil, err
	}
	toScript, err := p.payScript(utx.To)
	if err != nil {
		return nil, err
	}

	msgTx := wire.NewMsgTx(wire.TxVersion)
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	var total uint64
	for _, in := range utx.Inputs {
		prevHash, err := chainhash.NewHashFromStr(in.Outpoint.TxID)
		if err != nil {
			return nil, fmt.Errorf("%w: bad input txid %q", ErrInvalidTransaction, in.Outpoint.TxID)
		}
		outpoint := wire.NewOutPoint(prevHash, in.Outpoint.Index)
		msgTx.AddTxIn(wire.NewTxIn(outpoint, nil, nil))
		fetcher.AddPrevOut(*outpoint, wire.NewTxOut(int64(in.Value), fromScript))
		total += in.Value
	}

	sats := utx.Amount.Uint64()
	if total < sats+utx.BitcoinFee.Fee {
		return nil, fmt.Errorf("%w: inputs %d cover neither amount %d nor fee %d", ErrInsufficientBalance, total, sats, utx.BitcoinFee.Fee)
	}
	msgTx.AddTxOut(wire.NewTxOut(int64(sats), toScript))
	if change := total - sats - utx.BitcoinFee.Fee; change >= dustLimit {
		msgTx.AddTxOut(wire.NewTxOut(int64(change), fromScript))
	}

	priv, _ := btcec.PrivKeyFromBytes(key.PrivateKeyBytes())
	sigHashes := txscript.NewTxSigHashes(msgTx, fetcher)
	for i, in := range utx.Inputs {
		witness, err := txscript.WitnessSignature(msgTx, sigHashes, i, int64(in.Value), fromScript, txscript.SigHashAll, priv, true)
		if err != nil {
			return nil, fmt.Errorf("sign input %d: %w", i, err)
		}
		msgTx.TxIn[i].Witness = witness
	}

	var buf bytes.Buffer
	if err := msgTx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}

	txid := msgTx.TxHash().String()
	log.Chain.Debug().
		Str("txid", txid).
		Int("inputs", len(utx.Inputs)).
		Uint64("fee", utx.BitcoinFee.Fee).
		Msg("bitcoin transaction signed")

	return &types.SignedTx{
		UnsignedTx: *utx,
		Signature:  msgTx.TxIn[0].Witness[0],
		Raw:        buf.Bytes(),
		TxID:       txid,
	}, nil
}

// payScript resolves an address to its output script.
func (p *BitcoinProvider) payScript(addr string) ([]byte, error) {
	decoded, err := btcutil.DecodeAddress(addr, p.params())
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	script, err := txscript.PayToAddrScript(decoded)
	if err != nil {
		return nil, fmt.Errorf("%w: script for %q: %v", ErrInvalidAddress, addr, err)
	}
	return script, nil
}
