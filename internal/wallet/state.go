package wallet

import (
	"sync"
	"time"

	"github.com/emberwallet/ember-core/pkg/types"
)

// Status is the lock state of a wallet.
type Status string

const (
	StatusUninitialized Status = "uninitialized" // no wallet stored
	StatusLocked        Status = "locked"
	StatusUnlocked      Status = "unlocked"
)

// Snapshot is an immutable view of wallet state for observers. It never
// contains key material.
type Snapshot struct {
	WalletID  string                 `json:"wallet_id"`
	Status    Status                 `json:"status"`
	Addresses map[types.Chain]string `json:"addresses,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// stateStore publishes wallet state as queryable snapshots plus change
// notifications. Subscribers with full channels are skipped rather than
// blocked, so a slow observer cannot stall wallet operations.
type stateStore struct {
	mu      sync.RWMutex
	current Snapshot
	subs    map[int]chan Snapshot
	nextID  int
}

func newStateStore() *stateStore {
	return &stateStore{
		current: Snapshot{Status: StatusUninitialized, UpdatedAt: time.Now().UTC()},
		subs:    make(map[int]chan Snapshot),
	}
}

// Current returns the latest snapshot.
func (s *stateStore) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Subscribe registers an observer. The returned cancel func must be
// called to release the channel.
func (s *stateStore) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan Snapshot, 8)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

// publish replaces the snapshot and notifies subscribers.
func (s *stateStore) publish(walletID string, status Status, addresses map[types.Chain]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make(map[types.Chain]string, len(addresses))
	for k, v := range addresses {
		copied[k] = v
	}
	s.current = Snapshot{
		WalletID:  walletID,
		Status:    status,
		Addresses: copied,
		UpdatedAt: time.Now().UTC(),
	}
	for _, ch := range s.subs {
		select {
		case ch <- s.current:
		default:
		}
	}
}
