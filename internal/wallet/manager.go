// Package wallet orchestrates the wallet engine: key generation, secure
// storage, per-chain transaction building, replay admission and broadcast,
// behind a locked/unlocked state machine.
package wallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/emberwallet/ember-core/internal/chain"
	"github.com/emberwallet/ember-core/internal/log"
	"github.com/emberwallet/ember-core/internal/mnemonic"
	"github.com/emberwallet/ember-core/internal/netclient"
	"github.com/emberwallet/ember-core/internal/replay"
	"github.com/emberwallet/ember-core/internal/securestore"
	"github.com/emberwallet/ember-core/internal/storage"
	"github.com/emberwallet/ember-core/pkg/types"
)

// Orchestrator errors.
var (
	ErrWeakPassword      = errors.New("password does not meet strength policy")
	ErrIncorrectPassword = errors.New("incorrect password")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrWalletExists      = errors.New("wallet already exists")
	ErrWalletLocked      = errors.New("wallet is locked")
	ErrInvalidMnemonic   = errors.New("invalid mnemonic")
	ErrUnknownChain      = errors.New("unknown chain")
)

// minPasswordLen is the strength floor. Checked before any key material
// is generated.
const minPasswordLen = 8

// defaultMnemonicBits generates 12-word phrases.
const defaultMnemonicBits = 128

// chainService pairs a transaction builder with its network backend.
type chainService struct {
	provider chain.Provider
	backend  netclient.Backend
}

// Manager is the wallet orchestrator. At most one wallet is unlocked at a
// time; its decrypted seed lives only in the active session.
//
// The mutex serializes the balance-check, replay-admission and broadcast
// sequence, so concurrent sends cannot race past the guard with stale
// nonce or balance snapshots.
type Manager struct {
	mu sync.Mutex

	db      storage.DB
	vault   *securestore.Vault
	guard   *replay.Guard
	network types.Network
	chains  map[types.Chain]chainService

	vaultOpts securestore.Options
	session   *session
	state     *stateStore
}

// NewManager creates an orchestrator over the given stores. Chain support
// is added with RegisterChain.
func NewManager(db storage.DB, vault *securestore.Vault, guard *replay.Guard, network types.Network, vaultOpts securestore.Options) *Manager {
	return &Manager{
		db:        db,
		vault:     vault,
		guard:     guard,
		network:   network,
		chains:    make(map[types.Chain]chainService),
		vaultOpts: vaultOpts,
		state:     newStateStore(),
	}
}

// RegisterChain wires a provider and its backend into the orchestrator.
func (m *Manager) RegisterChain(provider chain.Provider, backend netclient.Backend) {
	m.chains[provider.Chain()] = chainService{provider: provider, backend: backend}
}

func (m *Manager) service(c types.Chain) (chainService, error) {
	svc, ok := m.chains[c]
	if !ok {
		return chainService{}, fmt.Errorf("%w: %s", ErrUnknownChain, c)
	}
	return svc, nil
}

func checkPasswordStrength(password string) error {
	if len(password) < minPasswordLen {
		return fmt.Errorf("%w: need at least %d characters", ErrWeakPassword, minPasswordLen)
	}
	return nil
}

// CreateWallet generates a fresh mnemonic, stores the seed encrypted under
// password and leaves the wallet unlocked. The mnemonic is returned once
// for backup display and retained nowhere else.
func (m *Manager) CreateWallet(id, password string) (string, error) {
	if err := checkPasswordStrength(password); err != nil {
		return "", err
	}
	phrase, err := mnemonic.Generate(defaultMnemonicBits)
	if err != nil {
		return "", err
	}
	if err := m.initWallet(id, phrase, password); err != nil {
		return "", err
	}
	return phrase, nil
}

// ImportWallet restores a wallet from an existing mnemonic. The phrase is
// checksum-validated before any storage happens.
func (m *Manager) ImportWallet(id, phrase, password string) error {
	if !mnemonic.Validate(phrase) {
		return ErrInvalidMnemonic
	}
	if err := checkPasswordStrength(password); err != nil {
		return err
	}
	return m.initWallet(id, mnemonic.Normalize(phrase), password)
}

func (m *Manager) initWallet(id, phrase, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := loadMetadata(m.db, id); err == nil {
		return fmt.Errorf("%w: %q", ErrWalletExists, id)
	}

	seed, err := mnemonic.Seed(phrase, "")
	if err != nil {
		return err
	}

	// Derive addresses before the vault copy is wiped by Store.
	sess := newSession(id, seed, m.network)
	addresses, accounts, err := m.defaultAccounts(sess)
	if err != nil {
		sess.close()
		return err
	}

	// Export: Store wipes its input, which must not alias the session seed.
	seedCopy, err := sess.seed.Export()
	if err != nil {
		sess.close()
		return err
	}
	if err := m.vault.Store(seedCopy, id, []byte(password), m.vaultOpts); err != nil {
		sess.close()
		return err
	}

	meta := &metadata{
		Version:     1,
		CreatedAt:   time.Now().UTC(),
		Network:     m.network,
		Addresses:   addresses,
		Accounts:    accounts,
		NextAccount: map[types.Chain]uint32{},
	}
	for c := range m.chains {
		meta.NextAccount[c] = 1
	}
	if err := saveMetadata(m.db, id, meta); err != nil {
		sess.close()
		return err
	}

	// Creation ends in the unlocked state.
	m.replaceSession(sess)
	m.state.publish(id, StatusUnlocked, addresses)
	log.Wallet.Info().Str("wallet", id).Msg("wallet initialized")
	return nil
}

// defaultAccounts derives account 0 on every registered chain.
func (m *Manager) defaultAccounts(sess *session) (map[types.Chain]string, []AccountEntry, error) {
	addresses := make(map[types.Chain]string, len(m.chains))
	accounts := make([]AccountEntry, 0, len(m.chains))
	for c := range m.chains {
		addr, err := sess.accountAddress(c, 0)
		if err != nil {
			return nil, nil, fmt.Errorf("derive %s address: %w", c, err)
		}
		addresses[c] = addr
		accounts = append(accounts, AccountEntry{Chain: c, Index: 0, Name: "default", Address: addr})
	}
	return addresses, accounts, nil
}

// UnlockWallet decrypts the stored seed into a fresh session. A vault tag
// mismatch surfaces as ErrIncorrectPassword; a missing entry as
// ErrWalletNotFound. Gate failures (when the entry requires platform
// auth) propagate unchanged.
func (m *Manager) UnlockWallet(ctx context.Context, id, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	meta, err := loadMetadata(m.db, id)
	if err != nil {
		return err
	}

	seed, err := m.vault.Retrieve(ctx, id, []byte(password))
	if errors.Is(err, securestore.ErrItemNotFound) {
		return ErrWalletNotFound
	}
	if errors.Is(err, securestore.ErrDecryptionFailed) {
		return ErrIncorrectPassword
	}
	if err != nil {
		return err
	}

	m.replaceSession(newSession(id, seed, m.network))
	m.state.publish(id, StatusUnlocked, meta.Addresses)
	log.Wallet.Info().Str("wallet", id).Msg("wallet unlocked")
	return nil
}

// LockWallet wipes the in-memory session. Idempotent; always succeeds.
func (m *Manager) LockWallet() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return
	}
	id := m.session.walletID
	m.replaceSession(nil)

	addresses := map[types.Chain]string{}
	if meta, err := loadMetadata(m.db, id); err == nil {
		addresses = meta.Addresses
	}
	m.state.publish(id, StatusLocked, addresses)
	log.Wallet.Info().Str("wallet", id).Msg("wallet locked")
}

// replaceSession swaps the active session, wiping the old one. Caller
// holds the mutex.
func (m *Manager) replaceSession(next *session) {
	m.session.close()
	m.session = next
}

// DeleteWallet removes the persisted ciphertext and metadata, wiping any
// active session for that wallet first.
func (m *Manager) DeleteWallet(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := loadMetadata(m.db, id); err != nil {
		return err
	}
	if m.session != nil && m.session.walletID == id {
		m.replaceSession(nil)
	}
	if err := m.vault.Delete(id); err != nil && !errors.Is(err, securestore.ErrItemNotFound) {
		return err
	}
	if err := deleteMetadata(m.db, id); err != nil {
		return err
	}
	m.state.publish("", StatusUninitialized, nil)
	log.Wallet.Info().Str("wallet", id).Msg("wallet deleted")
	return nil
}

// Status reports the lock state of the orchestrator.
func (m *Manager) Status() Status {
	return m.state.Current().Status
}

// Current returns the latest state snapshot.
func (m *Manager) Current() Snapshot {
	return m.state.Current()
}

// Subscribe registers a state observer.
func (m *Manager) Subscribe() (<-chan Snapshot, func()) {
	return m.state.Subscribe()
}

// ListWallets returns the ids of all stored wallets.
func (m *Manager) ListWallets() ([]string, error) {
	return listWallets(m.db)
}

// Addresses returns the cached receive addresses of a wallet. Works while
// locked; addresses are not secret.
func (m *Manager) Addresses(id string) (map[types.Chain]string, error) {
	meta, err := loadMetadata(m.db, id)
	if err != nil {
		return nil, err
	}
	return meta.Addresses, nil
}

// ListAccounts returns the derived account entries of a wallet.
func (m *Manager) ListAccounts(id string) ([]AccountEntry, error) {
	meta, err := loadMetadata(m.db, id)
	if err != nil {
		return nil, err
	}
	return meta.Accounts, nil
}

// unlockedSession returns the active session or ErrWalletLocked. Caller
// holds the mutex.
func (m *Manager) unlockedSession() (*session, error) {
	if m.session == nil {
		return nil, ErrWalletLocked
	}
	return m.session, nil
}

// NewAccount derives the next account on a chain and records it. Requires
// an unlocked wallet because derivation below the hardened account level
// needs the private parent.
func (m *Manager) NewAccount(c types.Chain, name string) (AccountEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.unlockedSession()
	if err != nil {
		return AccountEntry{}, err
	}
	if _, err := m.service(c); err != nil {
		return AccountEntry{}, err
	}

	meta, err := loadMetadata(m.db, sess.walletID)
	if err != nil {
		return AccountEntry{}, err
	}
	index := meta.NextAccount[c]
	addr, err := sess.accountAddress(c, index)
	if err != nil {
		return AccountEntry{}, err
	}

	entry := AccountEntry{Chain: c, Index: index, Name: name, Address: addr}
	meta.Accounts = append(meta.Accounts, entry)
	meta.NextAccount[c] = index + 1
	if err := saveMetadata(m.db, sess.walletID, meta); err != nil {
		return AccountEntry{}, err
	}
	return entry, nil
}

// GetBalance queries the chain backend for the wallet's default address.
func (m *Manager) GetBalance(ctx context.Context, c types.Chain) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.unlockedSession()
	if err != nil {
		return nil, err
	}
	svc, err := m.service(c)
	if err != nil {
		return nil, err
	}
	addr, err := m.defaultAddress(sess.walletID, c)
	if err != nil {
		return nil, err
	}
	return svc.backend.FetchBalance(ctx, addr)
}

// GetTransactionHistory queries confirmed history for the wallet's
// default address.
func (m *Manager) GetTransactionHistory(ctx context.Context, c types.Chain) ([]types.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.unlockedSession()
	if err != nil {
		return nil, err
	}
	svc, err := m.service(c)
	if err != nil {
		return nil, err
	}
	addr, err := m.defaultAddress(sess.walletID, c)
	if err != nil {
		return nil, err
	}
	return svc.backend.FetchTransactionHistory(ctx, addr)
}

// EstimateFee returns a fee estimate for a prospective transfer from the
// wallet's default address. Read-only.
func (m *Manager) EstimateFee(ctx context.Context, c types.Chain, to string, amount *big.Int) (*types.FeeEstimate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.unlockedSession()
	if err != nil {
		return nil, err
	}
	svc, err := m.service(c)
	if err != nil {
		return nil, err
	}
	addr, err := m.defaultAddress(sess.walletID, c)
	if err != nil {
		return nil, err
	}
	return svc.provider.EstimateCost(ctx, addr, to, amount)
}

// SendTransaction runs the full pipeline: build (validates addresses,
// amount and balance), replay admission, sign, broadcast. Returns the
// broadcast transaction id. The token argument selects a token transfer
// when non-empty.
func (m *Manager) SendTransaction(ctx context.Context, c types.Chain, to string, amount *big.Int, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.unlockedSession()
	if err != nil {
		return "", err
	}
	svc, err := m.service(c)
	if err != nil {
		return "", err
	}
	from, err := m.defaultAddress(sess.walletID, c)
	if err != nil {
		return "", err
	}

	var utx *types.UnsignedTx
	if token != "" {
		utx, err = svc.provider.BuildTokenTransfer(ctx, from, to, token, amount)
	} else {
		utx, err = svc.provider.BuildTransfer(ctx, from, to, amount)
	}
	if err != nil {
		return "", err
	}

	// Admission before signing: a rejected transfer never touches key
	// material.
	if err := m.guard.Admit(utx); err != nil {
		return "", err
	}

	key, err := sess.accountKey(c, 0)
	if err != nil {
		return "", err
	}
	defer key.Wipe()

	signed, err := svc.provider.Sign(ctx, utx, key)
	if err != nil {
		return "", err
	}

	txid, err := svc.backend.BroadcastTransaction(ctx, signed.Raw)
	if err != nil {
		return "", err
	}
	log.Wallet.Info().
		Str("wallet", sess.walletID).
		Str("chain", string(c)).
		Str("txid", txid).
		Msg("transaction broadcast")
	return txid, nil
}

// BackupWallet exports the encrypted seed re-sealed under backupPassword.
func (m *Manager) BackupWallet(ctx context.Context, id, password, backupPassword string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	backup, err := m.vault.Export(ctx, id, []byte(password), []byte(backupPassword))
	if errors.Is(err, securestore.ErrItemNotFound) {
		return nil, ErrWalletNotFound
	}
	if errors.Is(err, securestore.ErrDecryptionFailed) {
		return nil, ErrIncorrectPassword
	}
	return backup, err
}

// RestoreFromBackup imports a backup blob, re-encrypts the seed under
// password and rebuilds wallet metadata. The restored wallet is left
// locked.
func (m *Manager) RestoreFromBackup(backup []byte, backupPassword, password string) (string, error) {
	if err := checkPasswordStrength(password); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := m.vault.Import(backup, []byte(backupPassword), []byte(password), m.vaultOpts)
	if errors.Is(err, securestore.ErrDecryptionFailed) {
		return "", ErrIncorrectPassword
	}
	if err != nil {
		return "", err
	}

	// Rebuild metadata from the restored seed, then drop the plaintext.
	seed, err := m.vault.Retrieve(context.Background(), id, []byte(password))
	if err != nil {
		return "", err
	}
	sess := newSession(id, seed, m.network)
	defer sess.close()

	addresses, accounts, err := m.defaultAccounts(sess)
	if err != nil {
		return "", err
	}
	meta := &metadata{
		Version:     1,
		CreatedAt:   time.Now().UTC(),
		Network:     m.network,
		Addresses:   addresses,
		Accounts:    accounts,
		NextAccount: map[types.Chain]uint32{},
	}
	for c := range m.chains {
		meta.NextAccount[c] = 1
	}
	if err := saveMetadata(m.db, id, meta); err != nil {
		return "", err
	}

	m.state.publish(id, StatusLocked, addresses)
	log.Wallet.Info().Str("wallet", id).Msg("wallet restored from backup")
	return id, nil
}

// defaultAddress returns the cached account-0 address for a chain.
func (m *Manager) defaultAddress(id string, c types.Chain) (string, error) {
	meta, err := loadMetadata(m.db, id)
	if err != nil {
		return "", err
	}
	addr, ok := meta.Addresses[c]
	if !ok || addr == "" {
		return "", fmt.Errorf("%w: no %s address derived", ErrUnknownChain, c)
	}
	return addr, nil
}

// VerifyMnemonicBackup compares a user-entered phrase against the seed of
// the unlocked wallet, for backup confirmation flows. The phrase is
// normalized before comparison.
func (m *Manager) VerifyMnemonicBackup(phrase string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.unlockedSession()
	if err != nil {
		return false, err
	}
	if !mnemonic.Validate(phrase) {
		return false, nil
	}
	candidate, err := mnemonic.Seed(mnemonic.Normalize(phrase), "")
	if err != nil {
		return false, nil
	}
	defer func() {
		for i := range candidate {
			candidate[i] = 0
		}
	}()
	current, err := sess.seed.Bytes()
	if err != nil {
		return false, err
	}
	return bytes.Equal(candidate, current), nil
}
