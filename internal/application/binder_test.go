package application

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/averlane/beatlink-cli/internal/adapters/realtime"
	"github.com/averlane/beatlink-cli/internal/adapters/tokenstore/memory"
	"github.com/averlane/beatlink-cli/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type bindHarness struct {
	server *httptest.Server
	dials  atomic.Int32
}

func newBindHarness(t *testing.T) *bindHarness {
	t.Helper()

	h := &bindHarness{}
	upgrader := websocket.Upgrader{}
	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(h.server.Close)
	return h
}

func (h *bindHarness) channel(t *testing.T) *realtime.Channel {
	t.Helper()

	ch := &realtime.Channel{
		URL:            "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/collaboration",
		ReconnectDelay: time.Minute,
		Logger:         zaptest.NewLogger(t),
	}
	t.Cleanup(ch.Disconnect)
	return ch
}

func TestBindChannelConnectsWhenSessionIsResolved(t *testing.T) {
	t.Parallel()

	h := newBindHarness(t)
	ch := h.channel(t)

	store := memory.NewStore()
	session := NewSession(store, &fakeFetcher{user: domain.User{ID: 7}}, nil)
	require.NoError(t, session.ApplyLogin(context.Background(), domain.Credential{AccessToken: "T1"}))
	_, err := session.ResolveUser(context.Background())
	require.NoError(t, err)

	unbind := BindChannel(session, store, ch, nil)
	t.Cleanup(unbind)

	require.Eventually(t, ch.Connected, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, int32(1), h.dials.Load())
}

func TestBindChannelConnectsOnceUserResolves(t *testing.T) {
	t.Parallel()

	h := newBindHarness(t)
	ch := h.channel(t)

	store := memory.NewStore()
	session := NewSession(store, &fakeFetcher{user: domain.User{ID: 7}}, nil)
	require.NoError(t, session.ApplyLogin(context.Background(), domain.Credential{AccessToken: "T1"}))

	unbind := BindChannel(session, store, ch, nil)
	t.Cleanup(unbind)

	// Logged in but unresolved: no connection yet.
	time.Sleep(100 * time.Millisecond)
	require.False(t, ch.Connected())
	require.Equal(t, int32(0), h.dials.Load())

	_, err := session.ResolveUser(context.Background())
	require.NoError(t, err)

	require.Eventually(t, ch.Connected, 2*time.Second, 10*time.Millisecond)
}

func TestBindChannelDisconnectsOnLogout(t *testing.T) {
	t.Parallel()

	h := newBindHarness(t)
	ch := h.channel(t)

	store := memory.NewStore()
	session := NewSession(store, &fakeFetcher{user: domain.User{ID: 7}}, nil)
	require.NoError(t, session.ApplyLogin(context.Background(), domain.Credential{AccessToken: "T1"}))
	_, err := session.ResolveUser(context.Background())
	require.NoError(t, err)

	unbind := BindChannel(session, store, ch, nil)
	t.Cleanup(unbind)
	require.Eventually(t, ch.Connected, 2*time.Second, 10*time.Millisecond)

	session.ApplyLogout(context.Background())
	require.False(t, ch.Connected())
}

func TestBindChannelUnbindTearsDown(t *testing.T) {
	t.Parallel()

	h := newBindHarness(t)
	ch := h.channel(t)

	store := memory.NewStore()
	session := NewSession(store, &fakeFetcher{user: domain.User{ID: 7}}, nil)
	require.NoError(t, session.ApplyLogin(context.Background(), domain.Credential{AccessToken: "T1"}))
	_, err := session.ResolveUser(context.Background())
	require.NoError(t, err)

	unbind := BindChannel(session, store, ch, nil)
	require.Eventually(t, ch.Connected, 2*time.Second, 10*time.Millisecond)

	unbind()
	require.False(t, ch.Connected())
}
