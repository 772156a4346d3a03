package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/averlane/beatlink-cli/internal/domain"
	"github.com/averlane/beatlink-cli/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
)

const (
	stateDirMode   = 0o700
	credentialMode = 0o600
	credentialFile = "credential.toml"
)

// Store keeps the credential pair in a TOML file under the state root. The
// file survives restarts but is scoped to the local profile.
type Store struct {
	root string
	mu   sync.RWMutex
}

var _ ports.TokenStore = (*Store)(nil)

func NewStore(root string) *Store {
	return &Store{root: filepath.Clean(root)}
}

func (s *Store) Put(ctx context.Context, cred domain.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := toml.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.root, stateDirMode); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	if err := os.WriteFile(s.path(), data, credentialMode); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context) (domain.Credential, error) {
	if err := ctx.Err(); err != nil {
		return domain.Credential{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Credential{}, domain.ErrNoCredential
		}
		return domain.Credential{}, fmt.Errorf("read credential file: %w", err)
	}

	var cred domain.Credential
	if err := toml.Unmarshal(data, &cred); err != nil {
		return domain.Credential{}, fmt.Errorf("decode credential file: %w", err)
	}
	if cred.Empty() {
		return domain.Credential{}, domain.ErrNoCredential
	}

	return cred, nil
}

func (s *Store) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete credential file: %w", err)
	}

	return nil
}

func (s *Store) path() string {
	return filepath.Join(s.root, credentialFile)
}
