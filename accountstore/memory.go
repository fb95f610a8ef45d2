package accountstore

import (
	"context"
	"sync"
)

// Memory is a process-local account store for tests and single-node tools.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

func NewMemory() *Memory {
	return &Memory{accounts: make(map[string]Account)}
}

// Create inserts account. The identifier is normalized first.
func (m *Memory) Create(ctx context.Context, account Account) error {
	account.Identifier = Normalize(account.Identifier)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[account.Identifier]; ok {
		return ErrExists
	}
	m.accounts[account.Identifier] = account
	return nil
}

func (m *Memory) GetByIdentifier(ctx context.Context, identifier string) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[Normalize(identifier)]
	if !ok {
		return Account{}, ErrNotFound
	}
	return account, nil
}

func (m *Memory) UpdatePasswordHash(ctx context.Context, identifier, hash string) error {
	return m.update(identifier, func(a *Account) {
		a.PasswordHash = hash
	})
}

func (m *Memory) UpdateTOTP(ctx context.Context, identifier string, enabled bool, secret string) error {
	return m.update(identifier, func(a *Account) {
		a.TOTPEnabled = enabled
		a.TOTPSecret = secret
	})
}

func (m *Memory) SetStatus(ctx context.Context, identifier string, status Status) error {
	return m.update(identifier, func(a *Account) {
		a.Status = status
	})
}

func (m *Memory) update(identifier string, fn func(*Account)) error {
	key := Normalize(identifier)

	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[key]
	if !ok {
		return ErrNotFound
	}
	fn(&account)
	m.accounts[key] = account
	return nil
}
