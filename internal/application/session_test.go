package application

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/averlane/beatlink-cli/internal/adapters/tokenstore/memory"
	"github.com/averlane/beatlink-cli/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	user  domain.User
	err   error
	calls atomic.Int32
}

func (f *fakeFetcher) FetchUser(context.Context) (domain.User, error) {
	f.calls.Add(1)
	return f.user, f.err
}

func TestApplyLoginPersistsAndBroadcasts(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	session := NewSession(store, &fakeFetcher{}, nil)

	var events []SessionEvent
	session.Subscribe(func(event SessionEvent) { events = append(events, event) })

	require.NoError(t, session.ApplyLogin(context.Background(), domain.Credential{AccessToken: "T1"}))

	assert.True(t, session.LoggedIn())
	assert.Nil(t, session.User(), "user stays unresolved until first need")

	cred, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "T1", cred.AccessToken)

	require.Len(t, events, 1)
	assert.True(t, events[0].LoggedIn)
}

func TestApplyLoginRejectsEmptyCredential(t *testing.T) {
	t.Parallel()

	session := NewSession(memory.NewStore(), &fakeFetcher{}, nil)
	err := session.ApplyLogin(context.Background(), domain.Credential{})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.False(t, session.LoggedIn())
}

func TestApplyLogoutClearsEverythingFromAnyState(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	fetcher := &fakeFetcher{user: domain.User{ID: 7, Username: "alice"}}
	session := NewSession(store, fetcher, nil)

	require.NoError(t, session.ApplyLogin(context.Background(), domain.Credential{AccessToken: "T1"}))
	_, err := session.ResolveUser(context.Background())
	require.NoError(t, err)

	session.ApplyLogout(context.Background())

	assert.False(t, session.LoggedIn())
	assert.Nil(t, session.User())
	_, err = store.Get(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoCredential)

	// Idempotent from the already-logged-out state.
	session.ApplyLogout(context.Background())
	assert.False(t, session.LoggedIn())
}

func TestResolveUserFetchesLazilyAndCaches(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{user: domain.User{ID: 7, Username: "alice"}}
	session := NewSession(memory.NewStore(), fetcher, nil)
	require.NoError(t, session.ApplyLogin(context.Background(), domain.Credential{AccessToken: "T1"}))

	first, err := session.ResolveUser(context.Background())
	require.NoError(t, err)
	second, err := session.ResolveUser(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestResolveUserFailureForcesLogout(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	fetcher := &fakeFetcher{err: errors.New("401 after retry")}
	session := NewSession(store, fetcher, nil)
	require.NoError(t, session.ApplyLogin(context.Background(), domain.Credential{AccessToken: "T1"}))

	_, err := session.ResolveUser(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
	assert.False(t, session.LoggedIn())

	_, err = store.Get(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoCredential)
}

func TestResolveUserWhileLoggedOut(t *testing.T) {
	t.Parallel()

	session := NewSession(memory.NewStore(), &fakeFetcher{}, nil)
	_, err := session.ResolveUser(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
}

func TestNewSessionStartsLoggedInWithStoredCredential(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	require.NoError(t, store.Put(context.Background(), domain.Credential{AccessToken: "T1"}))

	session := NewSession(store, &fakeFetcher{}, nil)
	assert.True(t, session.LoggedIn())
}

func TestSubscriberMayUnsubscribeDuringBroadcast(t *testing.T) {
	t.Parallel()

	session := NewSession(memory.NewStore(), &fakeFetcher{}, nil)

	var id int
	var selfRemoved, otherRan bool
	id = session.Subscribe(func(SessionEvent) {
		session.Unsubscribe(id)
		selfRemoved = true
	})
	session.Subscribe(func(SessionEvent) { otherRan = true })

	require.NoError(t, session.ApplyLogin(context.Background(), domain.Credential{AccessToken: "T1"}))

	assert.True(t, selfRemoved)
	assert.True(t, otherRan)

	// The removed subscriber must not fire again.
	selfRemoved = false
	session.ApplyLogout(context.Background())
	assert.False(t, selfRemoved)
}
