package memory

import (
	"context"
	"sync"

	"quizly-game-service/internal/domain"

	"github.com/google/uuid"
)

// AccountStore keeps accounts in a map keyed by a generated record key.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
}

func NewAccountStore(seed ...domain.Account) *AccountStore {
	s := &AccountStore{accounts: make(map[string]domain.Account)}
	for _, account := range seed {
		s.accounts[uuid.NewString()] = account
	}
	return s
}

func (s *AccountStore) FindByField(_ context.Context, field, value string) (string, domain.Account, error) {
	match, err := fieldMatcher(field)
	if err != nil {
		return "", domain.Account{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key, account := range s.accounts {
		if match(account) == value {
			return key, account, nil
		}
	}
	return "", domain.Account{}, domain.ErrAccountNotFound
}

func (s *AccountStore) Create(_ context.Context, account domain.Account) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.UID == account.UID || existing.Nickname == account.Nickname {
			return "", domain.ErrAccountExists
		}
	}
	key := uuid.NewString()
	s.accounts[key] = account
	return key, nil
}

func (s *AccountStore) Update(_ context.Context, key string, account domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[key]; !ok {
		return domain.ErrAccountNotFound
	}
	s.accounts[key] = account
	return nil
}

func (s *AccountStore) RecordStats(_ context.Context, key string, update domain.StatsUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[key]
	if !ok {
		return domain.ErrAccountNotFound
	}
	account.Win += update.Win
	account.Lose += update.Lose
	account.MaxPoints = max(account.MaxPoints, update.MaxPoints)
	s.accounts[key] = account
	return nil
}

func fieldMatcher(field string) (func(domain.Account) string, error) {
	switch field {
	case "uid":
		return func(a domain.Account) string { return a.UID }, nil
	case "nickname":
		return func(a domain.Account) string { return a.Nickname }, nil
	default:
		return nil, domain.ErrUnsupportedField
	}
}
