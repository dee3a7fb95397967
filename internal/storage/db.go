// Package storage provides the key-value blob store backing the vault.
//
// The wallet engine treats the backing store as a capability: opaque blobs
// addressed by identifier, with no assumption about the host platform's
// keychain. Values stored here are always ciphertext; plaintext key material
// never reaches this layer.
package storage

import "errors"

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("key not found")

// DB is the interface for key-value blob storage.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix.
	// The callback receives a copy of the key and value.
	// Return a non-nil error from fn to stop iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}
