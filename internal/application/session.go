package application

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/averlane/beatlink-cli/internal/domain"
	"github.com/averlane/beatlink-cli/internal/ports"
	"go.uber.org/zap"
)

// UserFetcher loads the session owner's profile through an authenticated
// call. Satisfied by the authapi client.
type UserFetcher interface {
	FetchUser(ctx context.Context) (domain.User, error)
}

// SessionEvent is broadcast on every session transition.
type SessionEvent struct {
	LoggedIn bool
	User     *domain.User
}

type SessionListener func(SessionEvent)

// Session is the single writer of the loggedIn/user pair. Everything else
// observes transitions through Subscribe instead of polling the token store.
type Session struct {
	tokens ports.TokenStore
	users  UserFetcher
	logger *zap.Logger

	mu        sync.Mutex
	loggedIn  bool
	user      *domain.User
	listeners map[int]SessionListener
	nextID    int
}

func NewSession(tokens ports.TokenStore, users UserFetcher, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		tokens:    tokens,
		users:     users,
		logger:    logger,
		listeners: make(map[int]SessionListener),
	}

	// A stored credential means a prior session; a broken store reads as
	// logged out.
	if _, err := tokens.Get(context.Background()); err == nil {
		s.loggedIn = true
	}

	return s
}

// ApplyLogin persists the credential and marks the session live. The user
// stays unresolved until first needed.
func (s *Session) ApplyLogin(ctx context.Context, cred domain.Credential) error {
	if cred.Empty() {
		return domain.ErrInvalidCredentials
	}
	if err := s.tokens.Put(ctx, cred); err != nil {
		return fmt.Errorf("persist credential: %w", err)
	}

	s.mu.Lock()
	s.loggedIn = true
	s.user = nil
	s.mu.Unlock()

	s.logger.Info("session opened")
	s.broadcast()
	return nil
}

// ApplyLogout clears the stored credential and the cached user. It always
// leaves the session logged out, whatever the prior state.
func (s *Session) ApplyLogout(ctx context.Context) {
	if err := s.tokens.Delete(ctx); err != nil {
		s.logger.Warn("clear credential on logout", zap.Error(err))
	}

	s.mu.Lock()
	s.loggedIn = false
	s.user = nil
	s.mu.Unlock()

	s.logger.Info("session closed")
	s.broadcast()
}

// ResolveUser returns the cached profile, fetching it on first use. A failed
// fetch means the session is no longer valid and forces a logout; this is
// the only place a failed call does so.
func (s *Session) ResolveUser(ctx context.Context) (domain.User, error) {
	s.mu.Lock()
	if !s.loggedIn {
		s.mu.Unlock()
		return domain.User{}, domain.ErrSessionExpired
	}
	if s.user != nil {
		user := *s.user
		s.mu.Unlock()
		return user, nil
	}
	s.mu.Unlock()

	user, err := s.users.FetchUser(ctx)
	if err != nil {
		s.logger.Warn("resolve user failed, closing session", zap.Error(err))
		s.ApplyLogout(ctx)
		return domain.User{}, fmt.Errorf("resolve user: %w", domain.ErrSessionExpired)
	}

	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()

	s.broadcast()
	return user, nil
}

func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// User returns the cached profile without forcing a fetch.
func (s *Session) User() *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	user := *s.user
	return &user
}

func (s *Session) Subscribe(fn SessionListener) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.listeners[s.nextID] = fn
	return s.nextID
}

func (s *Session) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, id)
}

func (s *Session) broadcast() {
	s.mu.Lock()
	event := SessionEvent{LoggedIn: s.loggedIn}
	if s.user != nil {
		user := *s.user
		event.User = &user
	}
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	snapshot := make([]SessionListener, 0, len(ids))
	for _, id := range ids {
		snapshot = append(snapshot, s.listeners[id])
	}
	s.mu.Unlock()

	for _, fn := range snapshot {
		fn(event)
	}
}
