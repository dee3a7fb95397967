package chain

import (
	"context"
	"crypto/ed25519"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/emberwallet/ember-core/internal/address"
	"github.com/emberwallet/ember-core/internal/hdkey"
	"github.com/emberwallet/ember-core/pkg/crypto"
	"github.com/emberwallet/ember-core/pkg/types"
)

// zeroBlockhash is 32 zero bytes in base58.
const zeroBlockhash = "11111111111111111111111111111111"

func solanaTestIdentity(t *testing.T) (*hdkey.HDKey, string) {
	t.Helper()
	k := testKey(t, types.ChainSolana)
	edKey, err := crypto.Ed25519KeyFromSeed(k.PrivateKeyBytes())
	if err != nil {
		t.Fatalf("Ed25519KeyFromSeed: %v", err)
	}
	pub := edKey.Public().(ed25519.PublicKey)
	from, err := address.Derive(pub, types.Mainnet, address.FormatSolana)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	return k, from
}

func TestSolanaSign(t *testing.T) {
	key, from := solanaTestIdentity(t)
	p := NewSolanaProvider(nil, types.Mainnet)
	to := solana.NewWallet().PublicKey().String()

	utx := &types.UnsignedTx{
		Chain:     types.ChainSolana,
		Network:   types.Mainnet,
		From:      from,
		To:        to,
		Amount:    big.NewInt(1_000_000),
		Timestamp: time.Now().UTC(),
		SolanaFee: &types.SolanaFee{
			Lamports:        solanaBaseFee,
			RecentBlockhash: zeroBlockhash,
		},
	}

	signed, err := p.Sign(context.Background(), utx, key)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if len(signed.Signature) != 64 {
		t.Errorf("len(Signature) = %d, want 64", len(signed.Signature))
	}
	if len(signed.Raw) == 0 {
		t.Error("Raw is empty")
	}

	// The wire bytes must decode back to a transaction whose only
	// signature verifies against the sender key.
	decoded, err := solana.TransactionFromBytes(signed.Raw)
	if err != nil {
		t.Fatalf("TransactionFromBytes() error: %v", err)
	}
	if len(decoded.Signatures) != 1 {
		t.Fatalf("signatures = %d, want 1", len(decoded.Signatures))
	}
	if err := decoded.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures() error: %v", err)
	}
	if decoded.Message.RecentBlockhash.String() != zeroBlockhash {
		t.Errorf("blockhash = %s", decoded.Message.RecentBlockhash)
	}
}

func TestSolanaSign_WrongKey(t *testing.T) {
	key, _ := solanaTestIdentity(t)
	p := NewSolanaProvider(nil, types.Mainnet)

	// The sender account is not controlled by the signing key.
	utx := &types.UnsignedTx{
		Chain:   types.ChainSolana,
		Network: types.Mainnet,
		From:    solana.NewWallet().PublicKey().String(),
		To:      solana.NewWallet().PublicKey().String(),
		Amount:  big.NewInt(1),
		SolanaFee: &types.SolanaFee{
			Lamports:        solanaBaseFee,
			RecentBlockhash: zeroBlockhash,
		},
	}
	_, err := p.Sign(context.Background(), utx, key)
	if !errors.Is(err, ErrInvalidTransaction) {
		t.Errorf("Sign() error = %v, want ErrInvalidTransaction", err)
	}
}

func TestSolanaSign_TokenTransfer(t *testing.T) {
	key, from := solanaTestIdentity(t)
	p := NewSolanaProvider(nil, types.Mainnet)
	to := solana.NewWallet().PublicKey().String()
	mint := solana.NewWallet().PublicKey().String()

	utx := &types.UnsignedTx{
		Chain:   types.ChainSolana,
		Network: types.Mainnet,
		From:    from,
		To:      to,
		Amount:  big.NewInt(250_000),
		Token:   mint,
		SolanaFee: &types.SolanaFee{
			Lamports:        solanaBaseFee,
			RecentBlockhash: zeroBlockhash,
		},
	}

	signed, err := p.Sign(context.Background(), utx, key)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	decoded, err := solana.TransactionFromBytes(signed.Raw)
	if err != nil {
		t.Fatalf("TransactionFromBytes() error: %v", err)
	}
	if err := decoded.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures() error: %v", err)
	}
	// The instruction must target the SPL token program, not the system
	// program.
	prog, err := decoded.Message.ResolveProgramIDIndex(decoded.Message.Instructions[0].ProgramIDIndex)
	if err != nil {
		t.Fatalf("ResolveProgramIDIndex() error: %v", err)
	}
	if !prog.Equals(solana.TokenProgramID) {
		t.Errorf("program = %s, want token program", prog)
	}
}

func TestSolanaValidateAddress(t *testing.T) {
	p := NewSolanaProvider(nil, types.Mainnet)
	if !p.ValidateAddress(solana.NewWallet().PublicKey().String()) {
		t.Error("valid base58 key rejected")
	}
	if p.ValidateAddress("0OIl") { // illegal base58 characters
		t.Error("invalid base58 accepted")
	}
	if p.ValidateAddress("abc") { // decodes but wrong length
		t.Error("short key accepted")
	}
}
