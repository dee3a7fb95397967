package mnemonic

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

const vector12 = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// Seed for vector12 with empty passphrase, per the BIP-39 reference vectors.
const vector12SeedHex = "5eb00bbddcf069084889a8ab9155568165f5c453ccb85e70811aaed6f6da5fc19a5ac40b389cd370d086206dec8aa6c43daea6690f20ad3d8d48b2d2ce9e38e4"

func TestGenerateEntropy(t *testing.T) {
	for _, bits := range []int{128, 160, 192, 224, 256} {
		entropy, err := GenerateEntropy(bits)
		if err != nil {
			t.Fatalf("GenerateEntropy(%d) error: %v", bits, err)
		}
		if len(entropy) != bits/8 {
			t.Errorf("entropy length = %d bytes, want %d", len(entropy), bits/8)
		}
	}
}

func TestGenerateEntropy_InvalidStrength(t *testing.T) {
	for _, bits := range []int{0, 64, 129, 192 + 1, 512} {
		if _, err := GenerateEntropy(bits); !errors.Is(err, ErrInvalidStrength) {
			t.Errorf("GenerateEntropy(%d) error = %v, want ErrInvalidStrength", bits, err)
		}
	}
}

func TestEntropyRoundtrip(t *testing.T) {
	for _, bits := range []int{128, 160, 192, 224, 256} {
		entropy, err := GenerateEntropy(bits)
		if err != nil {
			t.Fatalf("GenerateEntropy(%d) error: %v", bits, err)
		}
		phrase, err := FromEntropy(entropy)
		if err != nil {
			t.Fatalf("FromEntropy() error: %v", err)
		}

		wantWords := (bits + bits/32) / 11
		if got := len(strings.Fields(phrase)); got != wantWords {
			t.Errorf("word count = %d, want %d", got, wantWords)
		}

		back, err := ToEntropy(phrase)
		if err != nil {
			t.Fatalf("ToEntropy() error: %v", err)
		}
		if !bytes.Equal(back, entropy) {
			t.Errorf("roundtrip mismatch for %d bits", bits)
		}
	}
}

func TestToEntropy_TypedErrors(t *testing.T) {
	tests := []struct {
		name   string
		phrase string
		want   error
	}{
		{"empty", "", ErrInvalidWordCount},
		{"eleven words", strings.Repeat("abandon ", 10) + "abandon", ErrInvalidWordCount},
		{"unknown word", strings.Repeat("abandon ", 11) + "zzzzzz", ErrInvalidWord},
		{"bad checksum", strings.Repeat("abandon ", 11) + "abandon", ErrInvalidChecksum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToEntropy(tt.phrase)
			if !errors.Is(err, tt.want) {
				t.Errorf("ToEntropy(%q) error = %v, want %v", tt.phrase, err, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		phrase string
		valid  bool
	}{
		{"reference 12-word", vector12, true},
		{"uppercase input", strings.ToUpper(vector12), true},
		{"extra whitespace", "  abandon  abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon   about ", true},
		{"empty", "", false},
		{"random words", "not a valid mnemonic phrase at all", false},
		{"wrong checksum", strings.Repeat("abandon ", 11) + "abandon", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Validate(tt.phrase); got != tt.valid {
				t.Errorf("Validate() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestValidate_FlippedFinalWord(t *testing.T) {
	// Replacing the checksum-bearing final word of the reference vector
	// with "abandon" yields the canonical invalid all-abandon phrase.
	flipped := strings.Repeat("abandon ", 11) + "abandon"
	if Validate(flipped) {
		t.Error("flipped final word should invalidate checksum")
	}
}

func TestSeed_ReferenceVector(t *testing.T) {
	seed, err := Seed(vector12, "")
	if err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	if len(seed) != SeedSize {
		t.Fatalf("seed length = %d, want %d", len(seed), SeedSize)
	}
	if got := hex.EncodeToString(seed); got != vector12SeedHex {
		t.Errorf("seed = %s, want %s", got, vector12SeedHex)
	}
}

func TestSeed_Deterministic(t *testing.T) {
	s1, err := Seed(vector12, "TREZOR")
	if err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	s2, err := Seed(vector12, "TREZOR")
	if err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	if !bytes.Equal(s1, s2) {
		t.Error("identical inputs should yield identical seeds")
	}

	s3, err := Seed(vector12, "other")
	if err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	if bytes.Equal(s1, s3) {
		t.Error("different passphrases should yield different seeds")
	}
}

func TestSeed_InvalidMnemonic(t *testing.T) {
	if _, err := Seed("abandon", ""); err == nil {
		t.Error("Seed with invalid mnemonic should fail")
	}
}

func TestGenerate_Unique(t *testing.T) {
	m1, err := Generate(128)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	m2, err := Generate(128)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if m1 == m2 {
		t.Error("two generated mnemonics should not be identical")
	}
	if !Validate(m1) || !Validate(m2) {
		t.Error("generated mnemonics should validate")
	}
}
