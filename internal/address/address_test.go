package address

import (
	"errors"
	"strings"
	"testing"

	"github.com/emberwallet/ember-core/internal/hdkey"
	"github.com/emberwallet/ember-core/internal/mnemonic"
	"github.com/emberwallet/ember-core/pkg/types"
)

func testPubKey(t *testing.T) []byte {
	t.Helper()
	seed, err := mnemonic.Seed(
		"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about", "")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	master, err := hdkey.NewMaster(seed)
	if err != nil {
		t.Fatalf("master: %v", err)
	}
	key, err := master.Derive(hdkey.DefaultPath(types.ChainBitcoin, 0))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	return key.PublicKeyBytes()
}

func TestDerive_P2PKH(t *testing.T) {
	pub := testPubKey(t)

	main, err := Derive(pub, types.Mainnet, FormatP2PKH)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	if !strings.HasPrefix(main, "1") {
		t.Errorf("mainnet P2PKH address %q should start with 1", main)
	}
	if !Validate(main, types.ChainBitcoin, types.Mainnet) {
		t.Error("derived mainnet address should validate on mainnet")
	}
	if Validate(main, types.ChainBitcoin, types.Testnet) {
		t.Error("mainnet address should not validate on testnet")
	}

	test, err := Derive(pub, types.Testnet, FormatP2PKH)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	if test == main {
		t.Error("testnet and mainnet addresses should differ")
	}
	if !Validate(test, types.ChainBitcoin, types.Testnet) {
		t.Error("derived testnet address should validate on testnet")
	}
}

func TestDerive_P2WPKH(t *testing.T) {
	pub := testPubKey(t)

	main, err := Derive(pub, types.Mainnet, FormatP2WPKH)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	if !strings.HasPrefix(main, "bc1") {
		t.Errorf("mainnet segwit address %q should start with bc1", main)
	}
	if !Validate(main, types.ChainBitcoin, types.Mainnet) {
		t.Error("derived segwit address should validate")
	}

	test, err := Derive(pub, types.Testnet, FormatP2WPKH)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	if !strings.HasPrefix(test, "tb1") {
		t.Errorf("testnet segwit address %q should start with tb1", test)
	}
	if Validate(test, types.ChainBitcoin, types.Mainnet) {
		t.Error("testnet segwit address should not validate on mainnet")
	}
}

func TestDerive_Ethereum(t *testing.T) {
	pub := testPubKey(t)

	addr, err := Derive(pub, types.Mainnet, FormatEthereum)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
		t.Errorf("ethereum address %q has wrong shape", addr)
	}
	if !Validate(addr, types.ChainEthereum, types.Mainnet) {
		t.Error("derived ethereum address should validate")
	}
	// Deterministic across calls.
	again, _ := Derive(pub, types.Mainnet, FormatEthereum)
	if addr != again {
		t.Error("derivation should be deterministic")
	}
}

func TestValidate_EthereumChecksum(t *testing.T) {
	// EIP-55 reference address.
	good := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	if !Validate(good, types.ChainEthereum, types.Mainnet) {
		t.Error("checksummed reference address should validate")
	}
	if !Validate(strings.ToLower(good), types.ChainEthereum, types.Mainnet) {
		t.Error("all-lowercase address should validate")
	}

	// Corrupt the checksum casing of one letter.
	bad := strings.Replace(good, "aA", "Aa", 1)
	if Validate(bad, types.ChainEthereum, types.Mainnet) {
		t.Error("wrong EIP-55 casing should not validate")
	}

	if Validate("0x1234", types.ChainEthereum, types.Mainnet) {
		t.Error("short hex should not validate")
	}
	if Validate("not-an-address", types.ChainEthereum, types.Mainnet) {
		t.Error("garbage should not validate")
	}
}

func TestDerive_Solana(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	addr, err := Derive(key, types.Mainnet, FormatSolana)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	if !Validate(addr, types.ChainSolana, types.Mainnet) {
		t.Error("derived solana address should validate")
	}

	if Validate("tooShort", types.ChainSolana, types.Mainnet) {
		t.Error("short base58 should not validate")
	}
	if Validate("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", types.ChainSolana, types.Mainnet) {
		t.Error("hex address should not validate as solana")
	}
}

func TestDerive_MalformedKeys(t *testing.T) {
	if _, err := Derive(make([]byte, 10), types.Mainnet, FormatP2PKH); !errors.Is(err, ErrInvalidPublicKey) {
		t.Errorf("short key error = %v, want ErrInvalidPublicKey", err)
	}
	// 33 bytes but not a curve point.
	junk := make([]byte, 33)
	junk[0] = 0x02
	if _, err := Derive(junk, types.Mainnet, FormatP2WPKH); !errors.Is(err, ErrInvalidPublicKey) {
		t.Errorf("non-point error = %v, want ErrInvalidPublicKey", err)
	}
	if _, err := Derive(make([]byte, 31), types.Mainnet, FormatSolana); !errors.Is(err, ErrInvalidPublicKey) {
		t.Errorf("short ed25519 error = %v, want ErrInvalidPublicKey", err)
	}
	if _, err := Derive(testPubKey(t), types.Mainnet, Format("bogus")); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("unknown format error = %v, want ErrUnknownFormat", err)
	}
}

func TestValidate_EmptyAndCrossChain(t *testing.T) {
	if Validate("", types.ChainBitcoin, types.Mainnet) {
		t.Error("empty address should not validate")
	}
	pub := testPubKey(t)
	btc, _ := Derive(pub, types.Mainnet, FormatP2WPKH)
	if Validate(btc, types.ChainEthereum, types.Mainnet) {
		t.Error("bitcoin address should not validate as ethereum")
	}
}
