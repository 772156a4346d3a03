package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"time"

	"github.com/averlane/beatlink-cli/internal/adapters/authapi"
	"github.com/averlane/beatlink-cli/internal/adapters/realtime"
	filestore "github.com/averlane/beatlink-cli/internal/adapters/tokenstore/file"
	"github.com/averlane/beatlink-cli/internal/application"
	"github.com/averlane/beatlink-cli/internal/ports"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	configName     = "config"
	configType     = "toml"
	stateDirName   = ".beatlink"
	apiURLKey      = "api.base_url"
	realtimeURLKey = "realtime.url"
	refreshModeKey = "auth.refresh_mode"
	reconnectKey   = "realtime.reconnect_delay"
)

type app struct {
	logger  *zap.Logger
	tokens  ports.TokenStore
	auth    *authapi.Client
	session *application.Session
	channel *realtime.Channel
	stream  *application.Stream
	toasts  *application.ToastQueue
}

func wireApp() (*app, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	stateDir := envOrDefault("BEATLINK_STATE_DIR", filepath.Join(homeDir, stateDirName))

	cfg := viper.New()
	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(stateDir)
	cfg.SetDefault(apiURLKey, "http://127.0.0.1:8000/api")
	cfg.SetDefault(realtimeURLKey, "ws://127.0.0.1:8000/ws/collaboration")
	cfg.SetDefault(refreshModeKey, string(authapi.RefreshModeCookie))
	cfg.SetDefault(reconnectKey, 5*time.Second)

	if err := cfg.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	logger, err := buildLogger()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("build cookie jar: %w", err)
	}
	httpClient := &http.Client{Jar: jar}

	tokens := filestore.NewStore(stateDir)
	authClient := &authapi.Client{
		API:         authapi.API{BaseURL: envOrDefault("BEATLINK_API_URL", cfg.GetString(apiURLKey))},
		HTTPClient:  httpClient,
		RefreshMode: authapi.RefreshMode(envOrDefault("BEATLINK_REFRESH_MODE", cfg.GetString(refreshModeKey))),
		Tokens:      tokens,
		Logger:      logger,
	}

	session := application.NewSession(tokens, authClient, logger)
	channel := &realtime.Channel{
		URL:            envOrDefault("BEATLINK_REALTIME_URL", cfg.GetString(realtimeURLKey)),
		ReconnectDelay: cfg.GetDuration(reconnectKey),
		Logger:         logger,
	}
	stream := application.NewStream(ports.SystemClock{}, logger)
	toasts := application.NewToastQueue(stateDir, 0, logger)

	return &app{
		logger:  logger,
		tokens:  tokens,
		auth:    authClient,
		session: session,
		channel: channel,
		stream:  stream,
		toasts:  toasts,
	}, nil
}

// openRealtime resolves the session user, attaches the stream, and binds the
// channel lifecycle to the session. The returned func tears everything down.
func (a *app) openRealtime(ctx context.Context) (func(), error) {
	if _, err := a.session.ResolveUser(ctx); err != nil {
		return nil, err
	}

	detach := a.stream.Attach(a.channel)
	unbind := application.BindChannel(a.session, a.tokens, a.channel, a.logger)
	return func() {
		unbind()
		detach()
	}, nil
}

func buildLogger() (*zap.Logger, error) {
	if os.Getenv("BEATLINK_DEBUG") != "" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
