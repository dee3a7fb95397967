package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/emberwallet/ember-core/internal/address"
	"github.com/emberwallet/ember-core/internal/hdkey"
	"github.com/emberwallet/ember-core/internal/log"
	"github.com/emberwallet/ember-core/internal/netclient"
	"github.com/emberwallet/ember-core/pkg/crypto"
	"github.com/emberwallet/ember-core/pkg/types"
)

// solanaBaseFee is the flat fee in lamports for a single-signature
// transaction.
const solanaBaseFee = 5000

// SolanaProvider builds system and SPL token transfers anchored to a
// recent blockhash.
type SolanaProvider struct {
	client  *netclient.SolanaClient
	network types.Network
}

// NewSolanaProvider creates a provider for the given network.
func NewSolanaProvider(client *netclient.SolanaClient, network types.Network) *SolanaProvider {
	return &SolanaProvider{client: client, network: network}
}

func (p *SolanaProvider) Chain() types.Chain { return types.ChainSolana }

// ValidateAddress checks base58 grammar and the 32-byte key length.
func (p *SolanaProvider) ValidateAddress(addr string) bool {
	return address.Validate(addr, types.ChainSolana, p.network)
}

// BuildTransfer builds a native SOL transfer. The recent blockhash fetched
// here bounds how long the transaction stays broadcastable; there is no
// account nonce.
func (p *SolanaProvider) BuildTransfer(ctx context.Context, from, to string, amount *big.Int) (*types.UnsignedTx, error) {
	if err := checkTransfer(types.ChainSolana, p.network, from, to, amount, nil); err != nil {
		return nil, err
	}
	if !amount.IsUint64() {
		return nil, fmt.Errorf("%w: amount %s exceeds lamport range", ErrInvalidTransaction, amount)
	}

	balance, err := p.client.FetchBalance(ctx, from)
	if err != nil {
		return nil, err
	}
	need := new(big.Int).Add(amount, big.NewInt(solanaBaseFee))
	if need.Cmp(balance) > 0 {
		return nil, fmt.Errorf("%w: amount plus fee %s exceeds balance %s", ErrInsufficientBalance, need, balance)
	}

	blockhash, err := p.client.RecentBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	return &types.UnsignedTx{
		Chain:     types.ChainSolana,
		Network:   p.network,
		From:      from,
		To:        to,
		Amount:    new(big.Int).Set(amount),
		Timestamp: time.Now().UTC(),
		SolanaFee: &types.SolanaFee{
			Lamports:        solanaBaseFee,
			RecentBlockhash: blockhash,
		},
	}, nil
}

// BuildTokenTransfer builds an SPL token transfer between the associated
// token accounts of sender and recipient.
func (p *SolanaProvider) BuildTokenTransfer(ctx context.Context, from, to, mint string, amount *big.Int) (*types.UnsignedTx, error) {
	if !p.ValidateAddress(mint) {
		return nil, fmt.Errorf("%w: token mint %q", ErrInvalidAddress, mint)
	}
	if err := checkTransfer(types.ChainSolana, p.network, from, to, amount, nil); err != nil {
		return nil, err
	}
	if !amount.IsUint64() {
		return nil, fmt.Errorf("%w: amount %s exceeds u64 range", ErrInvalidTransaction, amount)
	}

	// The flat fee is paid in SOL regardless of the token moved.
	balance, err := p.client.FetchBalance(ctx, from)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(big.NewInt(solanaBaseFee)) < 0 {
		return nil, fmt.Errorf("%w: balance %s cannot cover the %d lamport fee", ErrInsufficientBalance, balance, solanaBaseFee)
	}

	blockhash, err := p.client.RecentBlockhash(ctx)
	if err != nil {
		return nil, err
	}

	return &types.UnsignedTx{
		Chain:     types.ChainSolana,
		Network:   p.network,
		From:      from,
		To:        to,
		Amount:    new(big.Int).Set(amount),
		Token:     mint,
		Timestamp: time.Now().UTC(),
		SolanaFee: &types.SolanaFee{
			Lamports:        solanaBaseFee,
			RecentBlockhash: blockhash,
		},
	}, nil
}

// EstimateCost returns the flat per-signature fee.
func (p *SolanaProvider) EstimateCost(ctx context.Context, from, to string, amount *big.Int) (*types.FeeEstimate, error) {
	if err := checkTransfer(types.ChainSolana, p.network, from, to, amount, nil); err != nil {
		return nil, err
	}
	blockhash, err := p.client.RecentBlockhash(ctx)
	if err != nil {
		return nil, err
	}
	return &types.FeeEstimate{
		Chain: types.ChainSolana,
		Total: big.NewInt(solanaBaseFee),
		Solana: &types.SolanaFee{
			Lamports:        solanaBaseFee,
			RecentBlockhash: blockhash,
		},
	}, nil
}

// Sign assembles the message, signs it with the account's Ed25519 key and
// serializes the wire form. Offline given the blockhash captured at build
// time.
func (p *SolanaProvider) Sign(_ context.Context, utx *types.UnsignedTx, key *hdkey.HDKey) (*types.SignedTx, error) {
	if utx.SolanaFee == nil {
		return nil, fmt.Errorf("%w: missing solana fee parameters", ErrInvalidTransaction)
	}

	fromKey, err := solana.PublicKeyFromBase58(utx.From)
	if err != nil {
		return nil, fmt.Errorf("%w: sender %q", ErrInvalidAddress, utx.From)
	}
	toKey, err := solana.PublicKeyFromBase58(utx.To)
	if err != nil {
		return nil, fmt.Errorf("%w: recipient %q", ErrInvalidAddress, utx.To)
	}
	blockhash, err := solana.HashFromBase58(utx.SolanaFee.RecentBlockhash)
	if err != nil {
		return nil, fmt.Errorf("%w: bad blockhash %q", ErrInvalidTransaction, utx.SolanaFee.RecentBlockhash)
	}

	edKey, err := crypto.Ed25519KeyFromSeed(key.PrivateKeyBytes())
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	defer crypto.WipeEd25519(edKey)
	signer := solana.PrivateKey(edKey)
	if !signer.PublicKey().Equals(fromKey) {
		return nil, fmt.Errorf("%w: signing key does not control sender account", ErrInvalidTransaction)
	}

	instruction, err := p.transferInstruction(utx, fromKey, toKey)
	if err != nil {
		return nil, err
	}
	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		blockhash,
		solana.TransactionPayer(fromKey),
	)
	if err != nil {
		return nil, fmt.Errorf("assemble transaction: %w", err)
	}

	if _, err := tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(fromKey) {
			return &signer
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}

	txid := tx.Signatures[0].String()
	log.Chain.Debug().
		Str("txid", txid).
		Str("blockhash", utx.SolanaFee.RecentBlockhash).
		Msg("solana transaction signed")

	return &types.SignedTx{
		UnsignedTx: *utx,
		Signature:  tx.Signatures[0][:],
		Raw:        raw,
		TxID:       txid,
	}, nil
}

// transferInstruction builds either a system transfer or an SPL token
// transfer between associated token accounts.
func (p *SolanaProvider) transferInstruction(utx *types.UnsignedTx, from, to solana.PublicKey) (solana.Instruction, error) {
	lamports := utx.Amount.Uint64()
	if utx.Token == "" {
		return system.NewTransferInstruction(lamports, from, to).Build(), nil
	}

	mint, err := solana.PublicKeyFromBase58(utx.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: token mint %q", ErrInvalidAddress, utx.Token)
	}
	sourceATA, _, err := solana.FindAssociatedTokenAddress(from, mint)
	if err != nil {
		return nil, fmt.Errorf("derive source token account: %w", err)
	}
	destATA, _, err := solana.FindAssociatedTokenAddress(to, mint)
	if err != nil {
		return nil, fmt.Errorf("derive destination token account: %w", err)
	}
	return token.NewTransferInstruction(lamports, sourceATA, destATA, from, nil).Build(), nil
}
