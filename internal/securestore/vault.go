package securestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/emberwallet/ember-core/internal/authgate"
	"github.com/emberwallet/ember-core/internal/log"
	"github.com/emberwallet/ember-core/internal/storage"
	"github.com/emberwallet/ember-core/pkg/crypto"
)

// ErrItemNotFound is returned when no entry exists for an identifier.
var ErrItemNotFound = errors.New("item not found")

// keyPrefix namespaces vault entries within the blob store.
const keyPrefix = "vault/"

// entry is the persisted JSON envelope around an encrypted blob.
type entry struct {
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	RequireAuth bool      `json:"require_auth"`
	Blob        []byte    `json:"blob"`
}

// Options control per-entry behavior.
type Options struct {
	// RequireAuth adds a biometric/passcode gate in front of the entry.
	// This is an authorization layer on top of encryption, not a
	// replacement for it.
	RequireAuth bool

	// Iterations overrides the PBKDF2 work factor (0 = default).
	Iterations int
}

// Vault stores password-encrypted blobs by identifier.
type Vault struct {
	db   storage.DB
	gate *authgate.Gate
}

// NewVault creates a vault over the given store. The gate may be nil when
// no platform authenticator is available.
func NewVault(db storage.DB, gate *authgate.Gate) *Vault {
	return &Vault{db: db, gate: gate}
}

func vaultKey(identifier string) []byte {
	return []byte(keyPrefix + identifier)
}

// Store encrypts plaintext under password and persists it. Rejects empty
// passwords with ErrWeakPassword. The caller's plaintext is wiped before
// Store returns.
func (v *Vault) Store(plaintext []byte, identifier string, password []byte, opts Options) error {
	defer crypto.Wipe(plaintext)
	if len(password) == 0 {
		return ErrWeakPassword
	}

	blob, err := Encrypt(plaintext, password, opts.Iterations)
	if err != nil {
		return err
	}

	e := entry{
		Version:     1,
		CreatedAt:   time.Now().UTC(),
		RequireAuth: opts.RequireAuth,
		Blob:        blob,
	}
	data, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	if err := v.db.Put(vaultKey(identifier), data); err != nil {
		return fmt.Errorf("persist entry: %w", err)
	}
	log.Store.Debug().Str("id", identifier).Bool("gated", opts.RequireAuth).Msg("entry stored")
	return nil
}

// Retrieve authorizes (when the entry is gated), decrypts and returns the
// plaintext. Tag mismatch surfaces as ErrDecryptionFailed; a missing entry
// as ErrItemNotFound. The returned buffer is owned by the caller, who must
// wipe it.
func (v *Vault) Retrieve(ctx context.Context, identifier string, password []byte) ([]byte, error) {
	e, err := v.load(identifier)
	if err != nil {
		return nil, err
	}

	if e.RequireAuth {
		if err := v.gate.Authorize(ctx, "unlock "+identifier); err != nil {
			return nil, err
		}
	}

	plaintext, err := Decrypt(e.Blob, password)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// Has reports whether an entry exists.
func (v *Vault) Has(identifier string) (bool, error) {
	return v.db.Has(vaultKey(identifier))
}

// Delete removes the persisted ciphertext for an identifier.
func (v *Vault) Delete(identifier string) error {
	exists, err := v.db.Has(vaultKey(identifier))
	if err != nil {
		return err
	}
	if !exists {
		return ErrItemNotFound
	}
	if err := v.db.Delete(vaultKey(identifier)); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	log.Store.Debug().Str("id", identifier).Msg("entry deleted")
	return nil
}

// List returns the identifiers of all stored entries.
func (v *Vault) List() ([]string, error) {
	var ids []string
	err := v.db.ForEach([]byte(keyPrefix), func(key, _ []byte) error {
		ids = append(ids, string(key[len(keyPrefix):]))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (v *Vault) load(identifier string) (*entry, error) {
	data, err := v.db.Get(vaultKey(identifier))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("parse entry: %w", err)
	}
	if e.Version != 1 {
		return nil, fmt.Errorf("unsupported entry version: %d", e.Version)
	}
	return &e, nil
}
