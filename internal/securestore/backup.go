package securestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/emberwallet/ember-core/pkg/crypto"
)

// backupEnvelope is the exported wallet backup format. The payload is a
// vault blob encrypted under the backup password, which may differ from
// the entry's unlock password.
type backupEnvelope struct {
	Version    int       `json:"version"`
	Identifier string    `json:"identifier"`
	ExportedAt time.Time `json:"exported_at"`
	Blob       []byte    `json:"blob"`
}

// Export re-encrypts an entry's plaintext under backupPassword and returns
// a portable backup blob. Both passwords must be supplied: the entry's
// unlock password to decrypt, the backup password to seal the export.
func (v *Vault) Export(ctx context.Context, identifier string, password, backupPassword []byte) ([]byte, error) {
	if len(backupPassword) == 0 {
		return nil, ErrWeakPassword
	}
	plaintext, err := v.Retrieve(ctx, identifier, password)
	if err != nil {
		return nil, err
	}
	defer crypto.Wipe(plaintext)

	blob, err := Encrypt(plaintext, backupPassword, 0)
	if err != nil {
		return nil, err
	}
	env := backupEnvelope{
		Version:    1,
		Identifier: identifier,
		ExportedAt: time.Now().UTC(),
		Blob:       blob,
	}
	return json.Marshal(&env)
}

// Import decrypts a backup blob with backupPassword and stores the
// recovered plaintext as a fresh vault entry under password.
// Returns the identifier recorded in the backup.
func (v *Vault) Import(backup, backupPassword, password []byte, opts Options) (string, error) {
	var env backupEnvelope
	if err := json.Unmarshal(backup, &env); err != nil {
		return "", fmt.Errorf("parse backup: %w", err)
	}
	if env.Version != 1 {
		return "", fmt.Errorf("unsupported backup version: %d", env.Version)
	}

	plaintext, err := Decrypt(env.Blob, backupPassword)
	if err != nil {
		return "", err
	}
	// Store wipes the plaintext.
	if err := v.Store(plaintext, env.Identifier, password, opts); err != nil {
		return "", err
	}
	return env.Identifier, nil
}
