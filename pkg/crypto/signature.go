package crypto

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Signature layout: 64 bytes, big-endian R (32) followed by big-endian S (32).
const SignatureSize = 64

// Signing errors.
var (
	ErrInvalidKeySize    = fmt.Errorf("invalid key size")
	ErrInvalidPublicKey  = fmt.Errorf("invalid public key")
	ErrInvalidHashSize   = fmt.Errorf("hash must be 32 bytes")
	ErrSignatureFailed   = fmt.Errorf("signature generation failed")
)

// Signer signs 32-byte message hashes.
type Signer interface {
	// Sign produces a deterministic (RFC 6979) low-S ECDSA signature.
	Sign(hash []byte) ([]byte, error)
	// PublicKey returns the compressed 33-byte public key.
	PublicKey() []byte
}

// PrivateKey wraps a secp256k1 private key for ECDSA signing.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random secp256k1 private key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes creates a PrivateKey from a 32-byte secret scalar.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: private key must be 32 bytes, got %d", ErrInvalidKeySize, len(b))
	}
	key := secp256k1.PrivKeyFromBytes(b)
	if key.Key.IsZero() {
		return nil, fmt.Errorf("%w: zero scalar", ErrInvalidKeySize)
	}
	return &PrivateKey{key: key}, nil
}

// Sign produces a deterministic ECDSA signature over a 32-byte hash.
// The S component is normalized to the lower half of the curve order.
func (pk *PrivateKey) Sign(hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidHashSize, len(hash))
	}
	sig := ecdsa.Sign(pk.key, hash)
	r := sig.R()
	s := sig.S()
	if s.IsOverHalfOrder() {
		s.Negate()
	}
	out := make([]byte, SignatureSize)
	r.PutBytesUnchecked(out[:32])
	s.PutBytesUnchecked(out[32:])
	return out, nil
}

// PublicKey returns the compressed 33-byte public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

// Serialize returns the 32-byte private key scalar.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Zero securely zeroes the private key memory.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// VerifySignature checks a 64-byte R||S signature against a 32-byte hash and a
// compressed public key. Signatures with a high-S component, an out-of-range
// scalar, or an invalid curve point are rejected. Returns false on any error.
func VerifySignature(hash, signature, publicKey []byte) bool {
	if len(hash) != 32 || len(signature) != SignatureSize {
		return false
	}
	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(signature[:32]); overflow {
		return false
	}
	if overflow := s.SetByteSlice(signature[32:]); overflow {
		return false
	}
	if r.IsZero() || s.IsZero() {
		return false
	}
	// Reject the malleable high-S form outright.
	if s.IsOverHalfOrder() {
		return false
	}
	pubKey, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return false
	}
	sig := ecdsa.NewSignature(&r, &s)
	return sig.Verify(hash, pubKey)
}
