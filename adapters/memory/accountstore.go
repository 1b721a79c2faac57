// Package memory provides in-memory implementations of storage ports,
// used in tests and single-process setups.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hoaworks/metergate/ports"
)

// AccountStore is an in-memory implementation of ports.AccountStore.
// Updates are serialized under a mutex and honor the optimistic
// version check, so it exhibits the same conflict behavior as the
// SQLite store.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]ports.Account // by email
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]ports.Account)}
}

// GetByKey retrieves an account by email.
func (s *AccountStore) GetByKey(ctx context.Context, key string) (ports.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[key]
	if !ok {
		return ports.Account{}, ports.ErrNotFound
	}
	return cloneAccount(a), nil
}

// Create stores a new account.
func (s *AccountStore) Create(ctx context.Context, a ports.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.Email]; exists {
		return ports.ErrDuplicate
	}
	if a.Version == 0 {
		a.Version = 1
	}
	s.accounts[a.Email] = cloneAccount(a)
	return nil
}

// Update persists the account only if the stored version still matches.
func (s *AccountStore) Update(ctx context.Context, a ports.Account, expectedVersion int64) (ports.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.accounts[a.Email]
	if !ok {
		return ports.Account{}, ports.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return ports.Account{}, ports.ErrVersionConflict
	}

	a.Version = expectedVersion + 1
	a.CreatedAt = stored.CreatedAt
	s.accounts[a.Email] = cloneAccount(a)
	return cloneAccount(a), nil
}

// List returns accounts ordered by email with pagination.
func (s *AccountStore) List(ctx context.Context, limit, offset int) ([]ports.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.accounts))
	for k := range s.accounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if offset >= len(keys) {
		return nil, nil
	}
	keys = keys[offset:]
	if limit > 0 && limit < len(keys) {
		keys = keys[:limit]
	}

	out := make([]ports.Account, 0, len(keys))
	for _, k := range keys {
		out = append(out, cloneAccount(s.accounts[k]))
	}
	return out, nil
}

// cloneAccount copies the account including its counters map so callers
// never share mutable state with the store.
func cloneAccount(a ports.Account) ports.Account {
	a.UsageCounters = a.UsageCounters.Clone()
	return a
}

// Ensure interface compliance.
var _ ports.AccountStore = (*AccountStore)(nil)
