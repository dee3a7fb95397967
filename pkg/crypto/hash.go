// Package crypto provides signing and hashing primitives for the wallet engine.
package crypto

import (
	"github.com/emberwallet/ember-core/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// HashFields hashes the concatenation of several byte fields with
// length-prefix framing, so field boundaries cannot be shifted.
func HashFields(fields ...[]byte) types.Hash {
	h := blake3.New()
	var lenBuf [4]byte
	for _, f := range fields {
		n := len(f)
		lenBuf[0] = byte(n >> 24)
		lenBuf[1] = byte(n >> 16)
		lenBuf[2] = byte(n >> 8)
		lenBuf[3] = byte(n)
		h.Write(lenBuf[:])
		h.Write(f)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}
