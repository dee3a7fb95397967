package crypto

import (
	"bytes"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

func TestSignVerify_Roundtrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	defer key.Zero()

	hash := Hash([]byte("transfer 100 to bob"))
	sig, err := key.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	if !VerifySignature(hash[:], sig, key.PublicKey()) {
		t.Error("valid signature should verify")
	}
}

func TestSign_Deterministic(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	defer key.Zero()

	hash := Hash([]byte("same message"))
	sig1, err := key.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	sig2, err := key.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	if !bytes.Equal(sig1, sig2) {
		t.Error("RFC 6979 signatures over the same hash should be identical")
	}
}

func TestSign_LowS(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	defer key.Zero()

	for i := 0; i < 32; i++ {
		hash := Hash([]byte{byte(i)})
		sig, err := key.Sign(hash[:])
		if err != nil {
			t.Fatalf("Sign() error: %v", err)
		}
		var s secp256k1.ModNScalar
		if overflow := s.SetByteSlice(sig[32:]); overflow {
			t.Fatal("S component overflows curve order")
		}
		if s.IsOverHalfOrder() {
			t.Errorf("signature %d has high-S component", i)
		}
	}
}

func TestVerify_RejectsHighS(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	defer key.Zero()

	hash := Hash([]byte("malleability check"))
	sig, err := key.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	// Flip S to its high form: S' = N - S. The transformed signature is
	// still mathematically valid, and must be rejected anyway.
	var s secp256k1.ModNScalar
	s.SetByteSlice(sig[32:])
	s.Negate()
	highSig := make([]byte, SignatureSize)
	copy(highSig[:32], sig[:32])
	s.PutBytesUnchecked(highSig[32:])

	if VerifySignature(hash[:], highSig, key.PublicKey()) {
		t.Error("high-S signature should be rejected")
	}
}

func TestVerify_Tampered(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	defer key.Zero()

	hash := Hash([]byte("original"))
	sig, err := key.Sign(hash[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}

	otherHash := Hash([]byte("modified"))
	if VerifySignature(otherHash[:], sig, key.PublicKey()) {
		t.Error("signature over different message should not verify")
	}

	other, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	defer other.Zero()
	if VerifySignature(hash[:], sig, other.PublicKey()) {
		t.Error("signature should not verify against a different public key")
	}
}

func TestVerify_MalformedInputs(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	defer key.Zero()
	hash := Hash([]byte("x"))

	if VerifySignature(hash[:], make([]byte, 10), key.PublicKey()) {
		t.Error("short signature should be rejected")
	}
	if VerifySignature(hash[:], make([]byte, SignatureSize), key.PublicKey()) {
		t.Error("all-zero signature should be rejected")
	}
	sig, _ := key.Sign(hash[:])
	if VerifySignature(hash[:], sig, []byte{0x02, 0x01}) {
		t.Error("malformed public key should be rejected")
	}
}

func TestPrivateKeyFromBytes(t *testing.T) {
	if _, err := PrivateKeyFromBytes(make([]byte, 16)); err == nil {
		t.Error("wrong-length key should be rejected")
	}
	if _, err := PrivateKeyFromBytes(make([]byte, 32)); err == nil {
		t.Error("zero scalar should be rejected")
	}

	b := make([]byte, 32)
	b[31] = 1
	key, err := PrivateKeyFromBytes(b)
	if err != nil {
		t.Fatalf("PrivateKeyFromBytes() error: %v", err)
	}
	if !bytes.Equal(key.Serialize(), b) {
		t.Error("serialized key should match input")
	}
}
