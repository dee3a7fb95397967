package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/emberwallet/ember-core/internal/storage"
	"github.com/emberwallet/ember-core/pkg/types"
)

// metaPrefix namespaces wallet metadata in the blob store, separate from
// the vault's encrypted entries.
const metaPrefix = "walletmeta/"

// AccountEntry records one derived account. Index is the hardened BIP-44
// account component; the address is re-derivable from the seed but cached
// here so a locked wallet can still display it.
type AccountEntry struct {
	Chain   types.Chain `json:"chain"`
	Index   uint32      `json:"index"`
	Name    string      `json:"name"`
	Address string      `json:"address"`
}

// metadata is the persisted non-secret wallet record.
type metadata struct {
	Version     int                    `json:"version"`
	CreatedAt   time.Time              `json:"created_at"`
	Network     types.Network          `json:"network"`
	Addresses   map[types.Chain]string `json:"addresses"`
	Accounts    []AccountEntry         `json:"accounts"`
	NextAccount map[types.Chain]uint32 `json:"next_account"`
}

func metaKey(walletID string) []byte {
	return []byte(metaPrefix + walletID)
}

func loadMetadata(db storage.DB, walletID string) (*metadata, error) {
	data, err := db.Get(metaKey(walletID))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	var m metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse wallet metadata: %w", err)
	}
	if m.Version != 1 {
		return nil, fmt.Errorf("unsupported wallet metadata version: %d", m.Version)
	}
	return &m, nil
}

func saveMetadata(db storage.DB, walletID string, m *metadata) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal wallet metadata: %w", err)
	}
	return db.Put(metaKey(walletID), data)
}

func deleteMetadata(db storage.DB, walletID string) error {
	return db.Delete(metaKey(walletID))
}

// listWallets returns the ids of all wallets with stored metadata.
func listWallets(db storage.DB) ([]string, error) {
	var ids []string
	err := db.ForEach([]byte(metaPrefix), func(key, _ []byte) error {
		ids = append(ids, string(key[len(metaPrefix):]))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
