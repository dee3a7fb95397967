// Package address encodes and validates per-chain wallet addresses.
package address

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	gethcommon "github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"

	"github.com/emberwallet/ember-core/pkg/types"
)

// Format selects an address encoding.
type Format string

const (
	FormatP2PKH    Format = "p2pkh"   // legacy Base58Check
	FormatP2WPKH   Format = "p2wpkh"  // SegWit bech32
	FormatEthereum Format = "eth-hex" // EIP-55 checksummed hex
	FormatSolana   Format = "sol-b58" // base58 ed25519 public key
)

// Encoding errors.
var (
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrUnknownFormat    = errors.New("unknown address format")
)

// btcParams maps a network to btcd chain parameters.
func btcParams(network types.Network) *chaincfg.Params {
	if network == types.Testnet {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}

// Derive encodes a public key as an address in the requested format.
// secp256k1 formats take a 33-byte compressed key; Solana takes a
// 32-byte Ed25519 key.
func Derive(publicKey []byte, network types.Network, format Format) (string, error) {
	switch format {
	case FormatP2PKH:
		if err := checkSecpKey(publicKey); err != nil {
			return "", err
		}
		addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(publicKey), btcParams(network))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		return addr.EncodeAddress(), nil

	case FormatP2WPKH:
		if err := checkSecpKey(publicKey); err != nil {
			return "", err
		}
		addr, err := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(publicKey), btcParams(network))
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		return addr.EncodeAddress(), nil

	case FormatEthereum:
		uncompressed, err := uncompressSecpKey(publicKey)
		if err != nil {
			return "", err
		}
		// Address = last 20 bytes of Keccak256 over the 64-byte point;
		// Hex() applies the EIP-55 mixed-case checksum.
		hash := gethcrypto.Keccak256(uncompressed[1:])
		return gethcommon.BytesToAddress(hash[12:]).Hex(), nil

	case FormatSolana:
		if len(publicKey) != 32 {
			return "", fmt.Errorf("%w: ed25519 key must be 32 bytes, got %d", ErrInvalidPublicKey, len(publicKey))
		}
		return base58.Encode(publicKey), nil

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// DefaultFormat returns the format used for a chain's receive addresses.
func DefaultFormat(chain types.Chain) Format {
	switch chain {
	case types.ChainBitcoin:
		return FormatP2WPKH
	case types.ChainEthereum:
		return FormatEthereum
	case types.ChainSolana:
		return FormatSolana
	default:
		return FormatEthereum
	}
}

// Validate reports whether the address is well-formed for the chain and
// belongs to the given network. Mismatched network prefixes return false
// rather than an error.
func Validate(addr string, chain types.Chain, network types.Network) bool {
	if addr == "" {
		return false
	}
	switch chain {
	case types.ChainBitcoin:
		decoded, err := btcutil.DecodeAddress(addr, btcParams(network))
		if err != nil {
			return false
		}
		return decoded.IsForNet(btcParams(network))

	case types.ChainEthereum:
		if !gethcommon.IsHexAddress(addr) {
			return false
		}
		// All-lowercase and all-uppercase forms skip the EIP-55 check;
		// mixed case must match the checksum exactly.
		body := strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X")
		if body == strings.ToLower(body) || body == strings.ToUpper(body) {
			return true
		}
		return gethcommon.HexToAddress(addr).Hex() == addr

	case types.ChainSolana:
		raw, err := base58.Decode(addr)
		if err != nil {
			return false
		}
		return len(raw) == 32

	default:
		return false
	}
}

// checkSecpKey verifies a compressed secp256k1 public key.
func checkSecpKey(pub []byte) error {
	if len(pub) != 33 {
		return fmt.Errorf("%w: compressed key must be 33 bytes, got %d", ErrInvalidPublicKey, len(pub))
	}
	if _, err := secp256k1.ParsePubKey(pub); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return nil
}

// uncompressSecpKey expands a public key to the 65-byte 0x04||X||Y form.
func uncompressSecpKey(pub []byte) ([]byte, error) {
	switch len(pub) {
	case 65:
		if pub[0] != 0x04 {
			return nil, fmt.Errorf("%w: bad uncompressed prefix", ErrInvalidPublicKey)
		}
		if _, err := secp256k1.ParsePubKey(pub); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		return pub, nil
	case 33:
		key, err := secp256k1.ParsePubKey(pub)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		return key.SerializeUncompressed(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported key length %d", ErrInvalidPublicKey, len(pub))
	}
}
