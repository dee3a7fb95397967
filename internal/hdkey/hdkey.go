// Package hdkey implements BIP-32 hierarchical deterministic keys and
// BIP-44 derivation paths.
package hdkey

import (
	"errors"
	"fmt"

	"github.com/tyler-smith/go-bip32"

	"github.com/emberwallet/ember-core/pkg/crypto"
	"github.com/emberwallet/ember-core/pkg/types"
)

// SeedSize is the required master seed length in bytes.
const SeedSize = 64

// Derivation errors.
var (
	ErrInvalidSeed          = errors.New("seed must be 64 bytes")
	ErrDerivationOverflow   = errors.New("derivation index out of range")
	ErrKeyDerivationFailed  = errors.New("key derivation failed")
	ErrPublicOnly           = errors.New("operation requires a private key")
)

// HDKey represents a hierarchical deterministic key (BIP-32).
type HDKey struct {
	key *bip32.Key
}

// NewMaster creates a master HD key from a 64-byte seed
// (HMAC-SHA512 keyed with "Bitcoin seed" per BIP-32).
func NewMaster(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSeed, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyDerivationFailed, err)
	}
	return &HDKey{key: master}, nil
}

// Child derives the child key at the given index. Hardened derivation
// requires the parent private key and index < 2^31.
func (k *HDKey) Child(index uint32, hardened bool) (*HDKey, error) {
	if hardened {
		if index >= bip32.FirstHardenedChild {
			return nil, fmt.Errorf("%w: hardened index %d", ErrDerivationOverflow, index)
		}
		if !k.key.IsPrivate {
			return nil, fmt.Errorf("%w: hardened derivation", ErrPublicOnly)
		}
		index += bip32.FirstHardenedChild
	}
	child, err := k.key.NewChildKey(index)
	if err != nil {
		// Scalar out of range or point at infinity. Astronomically rare;
		// surfaced as fatal for this index rather than retried.
		return nil, fmt.Errorf("%w: index %d: %v", ErrKeyDerivationFailed, index, err)
	}
	return &HDKey{key: child}, nil
}

// Derive walks a parsed path from this key.
func (k *HDKey) Derive(path Path) (*HDKey, error) {
	current := k
	for _, step := range path {
		child, err := current.Child(step.Index, step.Hardened)
		if err != nil {
			return nil, err
		}
		current = child
	}
	return current, nil
}

// PrivateKeyBytes returns the raw 32-byte private key scalar.
// Returns nil if this is a public-only key.
func (k *HDKey) PrivateKeyBytes() []byte {
	if !k.key.IsPrivate {
		return nil
	}
	// bip32 Key.Key is 33 bytes with a leading 0x00 for private keys.
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		return raw[1:]
	}
	return raw
}

// PublicKeyBytes returns the compressed 33-byte public key.
func (k *HDKey) PublicKeyBytes() []byte {
	pub := k.key.PublicKey()
	return pub.Key
}

// ChainCode returns the 32-byte chain code.
func (k *HDKey) ChainCode() []byte {
	return k.key.ChainCode
}

// Signer returns a crypto.PrivateKey from this HD key's private scalar.
// The caller owns the signer and must Zero() it after use.
func (k *HDKey) Signer() (*crypto.PrivateKey, error) {
	priv := k.PrivateKeyBytes()
	if priv == nil {
		return nil, ErrPublicOnly
	}
	return crypto.PrivateKeyFromBytes(priv)
}

// IsPrivate returns true if this key contains a private key.
func (k *HDKey) IsPrivate() bool {
	return k.key.IsPrivate
}

// Depth returns the derivation depth (0 for master).
func (k *HDKey) Depth() uint8 {
	return k.key.Depth
}

// Neuter returns a public-key-only copy (for watch-only use).
func (k *HDKey) Neuter() *HDKey {
	return &HDKey{key: k.key.PublicKey()}
}

// Wipe zeroes the private key material held by this key.
func (k *HDKey) Wipe() {
	crypto.Wipe(k.key.Key)
	crypto.Wipe(k.key.ChainCode)
}

// DefaultPath returns m/44'/coin'/account'/0/0 for the given chain.
func DefaultPath(chain types.Chain, account uint32) Path {
	return Path{
		{Index: 44, Hardened: true},
		{Index: chain.CoinType(), Hardened: true},
		{Index: account, Hardened: true},
		{Index: 0, Hardened: false},
		{Index: 0, Hardened: false},
	}
}
