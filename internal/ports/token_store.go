package ports

import (
	"context"

	"github.com/averlane/beatlink-cli/internal/domain"
)

// TokenStore persists the session credential pair. Get returns
// domain.ErrNoCredential when nothing is stored; implementations never
// panic on a broken backing store.
type TokenStore interface {
	Get(ctx context.Context) (domain.Credential, error)
	Put(ctx context.Context, cred domain.Credential) error
	Delete(ctx context.Context) error
}
