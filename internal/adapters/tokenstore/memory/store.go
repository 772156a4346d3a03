package memory

import (
	"context"
	"sync"

	"github.com/averlane/beatlink-cli/internal/domain"
	"github.com/averlane/beatlink-cli/internal/ports"
)

// Store holds the credential in process memory only. Used by tests and by
// cookie-mode deployments that keep nothing durable on disk.
type Store struct {
	mu   sync.RWMutex
	cred domain.Credential
	set  bool
}

var _ ports.TokenStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Put(ctx context.Context, cred domain.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = cred
	s.set = true
	return nil
}

func (s *Store) Get(ctx context.Context) (domain.Credential, error) {
	if err := ctx.Err(); err != nil {
		return domain.Credential{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set || s.cred.Empty() {
		return domain.Credential{}, domain.ErrNoCredential
	}
	return s.cred, nil
}

func (s *Store) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = domain.Credential{}
	s.set = false
	return nil
}
