// Package mnemonic implements BIP-39 mnemonic generation, validation and
// seed derivation.
package mnemonic

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// Valid entropy sizes in bits.
var validStrengths = map[int]bool{128: true, 160: true, 192: true, 224: true, 256: true}

// Valid mnemonic word counts.
var validWordCounts = map[int]bool{12: true, 15: true, 18: true, 21: true, 24: true}

// SeedSize is the length of a derived seed in bytes (512 bits).
const SeedSize = 64

// Mnemonic errors.
var (
	ErrInvalidStrength  = errors.New("entropy strength must be 128, 160, 192, 224 or 256 bits")
	ErrInvalidWordCount = errors.New("mnemonic must have 12, 15, 18, 21 or 24 words")
	ErrInvalidWord      = errors.New("word not in BIP-39 wordlist")
	ErrInvalidChecksum  = errors.New("mnemonic checksum mismatch")
)

// Normalize trims and collapses whitespace and lowercases the phrase.
// The canonical wordlist is lowercase, so comparison happens in lowercase.
func Normalize(phrase string) string {
	return strings.ToLower(strings.Join(strings.Fields(phrase), " "))
}

// GenerateEntropy draws the given number of bits from the platform CSPRNG.
func GenerateEntropy(bits int) ([]byte, error) {
	if !validStrengths[bits] {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidStrength, bits)
	}
	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return nil, fmt.Errorf("generate entropy: %w", err)
	}
	return entropy, nil
}

// FromEntropy encodes entropy as a mnemonic sentence: entropy plus the
// first bits/32 bits of SHA-256(entropy), split into 11-bit wordlist indices.
func FromEntropy(entropy []byte) (string, error) {
	if !validStrengths[len(entropy)*8] {
		return "", fmt.Errorf("%w: got %d bits", ErrInvalidStrength, len(entropy)*8)
	}
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("encode mnemonic: %w", err)
	}
	return phrase, nil
}

// Generate creates a fresh mnemonic of the given strength.
func Generate(bits int) (string, error) {
	entropy, err := GenerateEntropy(bits)
	if err != nil {
		return "", err
	}
	return FromEntropy(entropy)
}

// ToEntropy decodes a mnemonic back to its entropy.
// Fails with ErrInvalidWordCount, ErrInvalidWord or ErrInvalidChecksum.
func ToEntropy(phrase string) ([]byte, error) {
	phrase = Normalize(phrase)
	words := strings.Fields(phrase)
	if !validWordCounts[len(words)] {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWordCount, len(words))
	}
	for _, w := range words {
		if _, ok := bip39.GetWordIndex(w); !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidWord, w)
		}
	}
	entropy, err := bip39.EntropyFromMnemonic(phrase)
	if err != nil {
		// Word count and membership already checked, so a failure here
		// is a checksum mismatch.
		return nil, fmt.Errorf("%w", ErrInvalidChecksum)
	}
	return entropy, nil
}

// Validate reports whether the phrase is a well-formed BIP-39 mnemonic:
// valid word count, every word in the wordlist, checksum matches.
func Validate(phrase string) bool {
	_, err := ToEntropy(phrase)
	return err == nil
}

// Seed derives the 64-byte wallet seed via PBKDF2-HMAC-SHA512 with 2048
// rounds, salted with "mnemonic" + passphrase. Deterministic.
func Seed(phrase, passphrase string) ([]byte, error) {
	phrase = Normalize(phrase)
	if _, err := ToEntropy(phrase); err != nil {
		return nil, err
	}
	seed, err := bip39.NewSeedWithErrorChecking(phrase, passphrase)
	if err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return seed, nil
}
