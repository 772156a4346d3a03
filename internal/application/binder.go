package application

import (
	"context"

	"github.com/averlane/beatlink-cli/internal/adapters/realtime"
	"github.com/averlane/beatlink-cli/internal/ports"
	"go.uber.org/zap"
)

// BindChannel ties the channel lifecycle to session transitions: connect
// once the session is logged in with a resolved user, disconnect on logout.
// The returned func unbinds and tears the connection down; logout or unbind,
// whichever comes first, closes the channel.
func BindChannel(session *Session, tokens ports.TokenStore, ch *realtime.Channel, logger *zap.Logger) func() {
	if logger == nil {
		logger = zap.NewNop()
	}

	apply := func(event SessionEvent) {
		if !event.LoggedIn {
			ch.Disconnect()
			return
		}
		if event.User == nil {
			// Logged in but unresolved; connect happens once ResolveUser
			// broadcasts the user.
			return
		}

		cred, err := tokens.Get(context.Background())
		if err != nil {
			logger.Warn("no credential for realtime connect", zap.Error(err))
			return
		}
		if err := ch.Connect(event.User.ID, cred.AccessToken); err != nil {
			logger.Warn("realtime connect failed", zap.Error(err))
		}
	}

	id := session.Subscribe(apply)

	// Apply the current state so a binder attached after login still
	// connects.
	event := SessionEvent{LoggedIn: session.LoggedIn(), User: session.User()}
	apply(event)

	return func() {
		session.Unsubscribe(id)
		ch.Disconnect()
	}
}
