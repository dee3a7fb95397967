// Package securestore implements authenticated encryption at rest for key
// material, backed by an opaque blob store.
package securestore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/emberwallet/ember-core/pkg/crypto"
)

// Encryption constants.
const (
	SaltSize  = 32
	NonceSize = 12 // standard GCM nonce
	KeySize   = 32 // AES-256

	// DefaultIterations is the PBKDF2 work factor for vault entries.
	DefaultIterations = 100_000

	// Encrypted format: [salt(32)][iterations(4)][nonce(12)][ciphertext+tag...]
	headerSize = SaltSize + 4
)

// Encryption errors.
var (
	ErrWeakPassword     = errors.New("password does not meet strength policy")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// deriveKey stretches password and salt into a 32-byte AES key.
func deriveKey(password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New)
}

// Encrypt seals data under a password using PBKDF2-HMAC-SHA256 and
// AES-256-GCM. Each call draws a fresh random salt and nonce.
//
// Output format: salt(32) | iterations(4) | nonce(12) | ciphertext+tag
func Encrypt(data, password []byte, iterations int) ([]byte, error) {
	if len(password) == 0 {
		return nil, ErrWeakPassword
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(password, salt, iterations)
	defer crypto.Wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, data, nil)

	out := make([]byte, 0, headerSize+NonceSize+len(ciphertext))
	out = append(out, salt...)
	out = binary.LittleEndian.AppendUint32(out, uint32(iterations))
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// Decrypt opens a blob produced by Encrypt. A wrong password, a truncated
// blob or any tampering with ciphertext or tag fails with
// ErrDecryptionFailed; no partial plaintext is ever returned.
func Decrypt(encrypted, password []byte) ([]byte, error) {
	minSize := headerSize + NonceSize + 16 // 16 = GCM tag
	if len(encrypted) < minSize {
		return nil, fmt.Errorf("%w: blob too short (%d bytes)", ErrDecryptionFailed, len(encrypted))
	}

	salt := encrypted[:SaltSize]
	iterations := int(binary.LittleEndian.Uint32(encrypted[SaltSize:]))
	if iterations <= 0 {
		return nil, fmt.Errorf("%w: bad iteration count", ErrDecryptionFailed)
	}
	nonce := encrypted[headerSize : headerSize+NonceSize]
	ciphertext := encrypted[headerSize+NonceSize:]

	key := deriveKey(password, salt, iterations)
	defer crypto.Wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}
