package securestore

import (
	"bytes"
	"errors"
	"testing"
)

// testIterations keeps key stretching cheap in tests.
const testIterations = 1024

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	plaintext := []byte("super secret seed material")
	password := []byte("correct horse battery staple")

	encrypted, err := Encrypt(plaintext, password, testIterations)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if bytes.Contains(encrypted, plaintext) {
		t.Error("ciphertext contains plaintext")
	}

	decrypted, err := Decrypt(encrypted, password)
	if err != nil {
		t.Fatalf("Decrypt() error: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("Decrypt() = %q, want %q", decrypted, plaintext)
	}
}

func TestEncrypt_FreshSaltAndNonce(t *testing.T) {
	plaintext := []byte("same input")
	password := []byte("same password")

	a, err := Encrypt(plaintext, password, testIterations)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	b, err := Encrypt(plaintext, password, testIterations)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same input produced identical blobs")
	}
	if bytes.Equal(a[:SaltSize], b[:SaltSize]) {
		t.Error("salt reused across encryptions")
	}
}

func TestEncrypt_EmptyPassword(t *testing.T) {
	if _, err := Encrypt([]byte("data"), nil, testIterations); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("Encrypt() error = %v, want ErrWeakPassword", err)
	}
}

func TestDecrypt_WrongPassword(t *testing.T) {
	encrypted, err := Encrypt([]byte("data"), []byte("right"), testIterations)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	if _, err := Decrypt(encrypted, []byte("wrong")); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Decrypt() error = %v, want ErrDecryptionFailed", err)
	}
}

func TestDecrypt_Truncated(t *testing.T) {
	encrypted, err := Encrypt([]byte("data"), []byte("pw"), testIterations)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	for _, n := range []int{0, SaltSize, headerSize, headerSize + NonceSize + 15} {
		if _, err := Decrypt(encrypted[:n], []byte("pw")); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("Decrypt(%d bytes) error = %v, want ErrDecryptionFailed", n, err)
		}
	}
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	encrypted, err := Encrypt([]byte("data"), []byte("pw"), testIterations)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}

	// Flip one bit in every region of the blob. GCM must reject all of them.
	for _, pos := range []int{0, SaltSize + 1, headerSize, headerSize + NonceSize, len(encrypted) - 1} {
		tampered := bytes.Clone(encrypted)
		tampered[pos] ^= 0x01
		if _, err := Decrypt(tampered, []byte("pw")); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("Decrypt(flipped byte %d) error = %v, want ErrDecryptionFailed", pos, err)
		}
	}
}

func TestEncrypt_DefaultIterations(t *testing.T) {
	encrypted, err := Encrypt([]byte("data"), []byte("pw"), 0)
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	// The work factor is recorded in the header so old blobs stay readable
	// if the default ever changes.
	got := int(uint32(encrypted[SaltSize]) | uint32(encrypted[SaltSize+1])<<8 |
		uint32(encrypted[SaltSize+2])<<16 | uint32(encrypted[SaltSize+3])<<24)
	if got != DefaultIterations {
		t.Errorf("recorded iterations = %d, want %d", got, DefaultIterations)
	}
	if _, err := Decrypt(encrypted, []byte("pw")); err != nil {
		t.Errorf("Decrypt() error: %v", err)
	}
}
