package e2e

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/averlane/beatlink-cli/internal/adapters/authapi"
	"github.com/averlane/beatlink-cli/internal/adapters/realtime"
	"github.com/averlane/beatlink-cli/internal/adapters/tokenstore/memory"
	"github.com/averlane/beatlink-cli/internal/application"
	"github.com/averlane/beatlink-cli/internal/domain"
	"github.com/averlane/beatlink-cli/internal/ports"
	"github.com/averlane/beatlink-cli/internal/stubserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	backend *stubserver.Server
	server  *httptest.Server
	tokens  ports.TokenStore
	client  *authapi.Client
	session *application.Session
	channel *realtime.Channel
	stream  *application.Stream
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	backend := stubserver.New()
	backend.CookieRefresh = true
	backend.AddUser(stubserver.User{ID: 7, Username: "alice", Email: "a@b.com", Password: "x"})

	server := httptest.NewServer(backend.Handler())
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	tokens := memory.NewStore()
	client := &authapi.Client{
		API:         authapi.API{BaseURL: server.URL},
		HTTPClient:  &http.Client{Jar: jar},
		RefreshMode: authapi.RefreshModeCookie,
		Tokens:      tokens,
		Logger:      zaptest.NewLogger(t),
	}

	channel := &realtime.Channel{
		URL:            "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/collaboration",
		ReconnectDelay: 50 * time.Millisecond,
		Logger:         zaptest.NewLogger(t),
	}
	t.Cleanup(channel.Disconnect)

	return &fixture{
		backend: backend,
		server:  server,
		tokens:  tokens,
		client:  client,
		session: application.NewSession(tokens, client, zaptest.NewLogger(t)),
		channel: channel,
		stream:  application.NewStream(ports.SystemClock{}, zaptest.NewLogger(t)),
	}
}

// login walks the full path a command would: authenticate, apply the
// credential, resolve the user, and bind the channel to the session.
func (f *fixture) login(t *testing.T) func() {
	t.Helper()

	ctx := context.Background()
	cred, err := f.client.Login(ctx, "a@b.com", "x")
	require.NoError(t, err)
	require.NoError(t, f.session.ApplyLogin(ctx, cred))
	require.True(t, f.session.LoggedIn())

	user, err := f.session.ResolveUser(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(7), user.ID)
	require.Equal(t, "alice", user.Username)

	detach := f.stream.Attach(f.channel)
	unbind := application.BindChannel(f.session, f.tokens, f.channel, zaptest.NewLogger(t))
	teardown := func() {
		unbind()
		detach()
	}
	t.Cleanup(teardown)

	require.Eventually(t, f.channel.Connected, 2*time.Second, 10*time.Millisecond)
	return teardown
}

func TestLoginBacklogAndLivePush(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.backend.SetBacklog(7, []stubserver.BacklogEntry{
		{ID: 1, NotifType: "invite", Message: "carol invited you to collaborate on 'Loop'.", Timestamp: time.Now().Add(-time.Hour)},
	})

	f.login(t)

	// Backlog lands first.
	require.Eventually(t, func() bool {
		return len(f.stream.Snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.backend.PushInvitation(7, 2, "bob", "Song")

	require.Eventually(t, func() bool {
		return len(f.stream.Snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	feed := f.stream.Snapshot()
	require.Equal(t, int64(2), feed[0].ID)
	assert.True(t, feed[0].Live)
	assert.Equal(t, "bob invited you to collaborate on 'Song'.", feed[0].Message)
	require.Equal(t, int64(1), feed[1].ID)
	assert.False(t, feed[1].Live)
}

func TestExpiredAccessTokenIsRefreshedOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	ctx := context.Background()
	cred, err := f.client.Login(ctx, "a@b.com", "x")
	require.NoError(t, err)
	require.NoError(t, f.session.ApplyLogin(ctx, cred))

	f.backend.Revoke(cred.AccessToken)

	// The 401 forces one refresh through the cookie grant, then the retry
	// succeeds with the rotated access token.
	user, err := f.session.ResolveUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	rotated, err := f.tokens.Get(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, cred.AccessToken, rotated.AccessToken)
}

func TestLogoutDisconnectsChannel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.login(t)

	require.NoError(t, f.client.Logout(context.Background()))
	f.session.ApplyLogout(context.Background())

	assert.False(t, f.session.LoggedIn())
	assert.False(t, f.channel.Connected())
	_, err := f.tokens.Get(context.Background())
	assert.ErrorIs(t, err, domain.ErrNoCredential)
}

func TestDroppedConnectionReconnectsAndReplaysBacklog(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.backend.SetBacklog(7, []stubserver.BacklogEntry{
		{ID: 1, NotifType: "invite", Message: "carol invited you to collaborate on 'Loop'.", Timestamp: time.Now().Add(-time.Hour)},
	})

	f.login(t)
	require.Eventually(t, func() bool {
		return len(f.stream.Snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.backend.DropConnections(7)

	require.Eventually(t, f.channel.Connected, 3*time.Second, 10*time.Millisecond)

	// The replayed backlog merges by ID: still one entry, and a live push
	// through the new connection arrives on top of it.
	f.backend.PushInvitation(7, 2, "bob", "Song")
	require.Eventually(t, func() bool {
		return len(f.stream.Snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, f.stream.Snapshot(), 2)
}
