package crypto

import (
	"crypto/ed25519"
	"fmt"
)

// Ed25519KeyFromSeed expands a 32-byte seed into an Ed25519 private key.
// Solana keys are derived this way from a BIP-32 leaf scalar.
func Ed25519KeyFromSeed(seed []byte) (ed25519.PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: ed25519 seed must be %d bytes, got %d",
			ErrInvalidKeySize, ed25519.SeedSize, len(seed))
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// SignEd25519 signs a message with an Ed25519 private key.
// Unlike ECDSA the message is signed directly, not a prehash.
func SignEd25519(message []byte, priv ed25519.PrivateKey) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: ed25519 private key must be %d bytes, got %d",
			ErrInvalidKeySize, ed25519.PrivateKeySize, len(priv))
	}
	return ed25519.Sign(priv, message), nil
}

// VerifyEd25519 checks an Ed25519 signature. Returns false on any error.
func VerifyEd25519(message, signature, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize || len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}

// WipeEd25519 zeroes an Ed25519 private key in place.
func WipeEd25519(priv ed25519.PrivateKey) {
	for i := range priv {
		priv[i] = 0
	}
}
