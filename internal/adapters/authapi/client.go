package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/averlane/beatlink-cli/internal/domain"
	"github.com/averlane/beatlink-cli/internal/ports"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

// RefreshMode selects where the refresh grant lives. The two modes are not
// interchangeable mid-session; pick one per deployment.
type RefreshMode string

const (
	// RefreshModeCookie relies on an HttpOnly refresh cookie held by the
	// HTTP client's jar. The client never sees the refresh token itself.
	RefreshModeCookie RefreshMode = "cookie"
	// RefreshModeToken sends the stored refresh token in the request body.
	RefreshModeToken RefreshMode = "token"
)

type API struct {
	BaseURL      string
	LoginPath    string
	RegisterPath string
	RefreshPath  string
	LogoutPath   string
	UserPath     string
}

func (a API) withDefaults() API {
	if a.LoginPath == "" {
		a.LoginPath = "/auth/login"
	}
	if a.RegisterPath == "" {
		a.RegisterPath = "/auth/register"
	}
	if a.RefreshPath == "" {
		a.RefreshPath = "/auth/refresh"
	}
	if a.LogoutPath == "" {
		a.LogoutPath = "/auth/logout"
	}
	if a.UserPath == "" {
		a.UserPath = "/user"
	}
	return a
}

// Client talks to the identity service. It never mutates session state on
// its own: Login returns the credential for the session to apply, and only
// Refresh and Logout write through the token store.
type Client struct {
	API            API
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	RefreshMode    RefreshMode
	Tokens         ports.TokenStore
	Logger         *zap.Logger
}

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh,omitempty"`
}

func (c *Client) Login(ctx context.Context, identifier, secret string) (domain.Credential, error) {
	resp, cancel, err := c.postJSON(ctx, c.api().LoginPath, loginRequest{Email: identifier, Password: secret}, "")
	if err != nil {
		return domain.Credential{}, fmt.Errorf("login request: %w", err)
	}
	defer cancel()
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
		return domain.Credential{}, fmt.Errorf("login rejected (status %d): %w", resp.StatusCode, domain.ErrInvalidCredentials)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return domain.Credential{}, fmt.Errorf("login request: status %d", resp.StatusCode)
	}

	var payload tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return domain.Credential{}, fmt.Errorf("decode login response: %w", err)
	}
	if payload.Access == "" {
		return domain.Credential{}, errors.New("login response missing access token")
	}

	return domain.Credential{AccessToken: payload.Access, RefreshToken: payload.Refresh}, nil
}

func (c *Client) Register(ctx context.Context, username, identifier, secret string) error {
	resp, cancel, err := c.postJSON(ctx, c.api().RegisterPath, registerRequest{Username: username, Email: identifier, Password: secret}, "")
	if err != nil {
		return fmt.Errorf("register request: %w", err)
	}
	defer cancel()
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return nil
	}

	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
		if fieldErrs := decodeFieldErrors(resp.Body); len(fieldErrs) > 0 {
			return &domain.ValidationError{Fields: fieldErrs}
		}
	}

	return fmt.Errorf("register request: status %d", resp.StatusCode)
}

// Logout invalidates the server-side refresh grant and always clears the
// stored credential, network outcome notwithstanding.
func (c *Client) Logout(ctx context.Context) error {
	cred, err := c.Tokens.Get(ctx)
	if err != nil && !errors.Is(err, domain.ErrNoCredential) {
		c.logger().Warn("read credential before logout", zap.Error(err))
	}

	if !cred.Empty() {
		resp, cancel, err := c.postJSON(ctx, c.api().LogoutPath, struct{}{}, cred.AccessToken)
		if err != nil {
			c.logger().Warn("logout request failed", zap.Error(err))
		} else {
			_ = resp.Body.Close()
			cancel()
		}
	}

	if err := c.Tokens.Delete(ctx); err != nil {
		return fmt.Errorf("clear stored credential: %w", err)
	}
	return nil
}

// Refresh exchanges the refresh grant for a new access token and persists
// the rotated credential. Any failure reads as domain.ErrSessionExpired:
// callers must treat it as "session ended", never retry.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	var body refreshRequest
	if c.RefreshMode == RefreshModeToken {
		cred, err := c.Tokens.Get(ctx)
		if err != nil || cred.RefreshToken == "" {
			return "", domain.ErrSessionExpired
		}
		body.Refresh = cred.RefreshToken
	}

	resp, cancel, err := c.postJSON(ctx, c.api().RefreshPath, body, "")
	if err != nil {
		c.logger().Warn("refresh request failed", zap.Error(err))
		return "", domain.ErrSessionExpired
	}
	defer cancel()
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.logger().Warn("refresh rejected", zap.Int("status", resp.StatusCode))
		return "", domain.ErrSessionExpired
	}

	var payload tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		c.logger().Warn("decode refresh response", zap.Error(err))
		return "", domain.ErrSessionExpired
	}
	if payload.Access == "" {
		return "", domain.ErrSessionExpired
	}

	cred, err := c.Tokens.Get(ctx)
	if err != nil && !errors.Is(err, domain.ErrNoCredential) {
		return "", domain.ErrSessionExpired
	}
	cred.AccessToken = payload.Access
	if payload.Refresh != "" {
		cred.RefreshToken = payload.Refresh
	}
	if err := c.Tokens.Put(ctx, cred); err != nil {
		return "", domain.ErrSessionExpired
	}

	return payload.Access, nil
}

// postJSON issues the request on a context with the fallback timeout. The
// returned cancel releases that context; callers must hold it until the
// response body is fully consumed, or a streamed body read fails with a
// cancelled context.
func (c *Client) postJSON(ctx context.Context, path string, body any, bearer string) (*http.Response, context.CancelFunc, error) {
	endpoint, err := buildAPIURL(c.api().BaseURL, path)
	if err != nil {
		return nil, nil, err
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("encode request body: %w", err)
	}

	requestCtx, cancel := c.requestContext(ctx)
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return resp, cancel, nil
}

func (c *Client) api() API {
	return c.API.withDefaults()
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	requestTimeout := c.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	return context.WithTimeout(ctx, requestTimeout)
}

func decodeFieldErrors(body io.Reader) map[string]string {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(io.LimitReader(body, maxResponseBytes)).Decode(&raw); err != nil {
		return nil
	}

	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			fields[key] = single
			continue
		}
		var multiple []string
		if err := json.Unmarshal(value, &multiple); err == nil && len(multiple) > 0 {
			fields[key] = multiple[0]
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func buildAPIURL(baseURL string, path string) (string, error) {
	if baseURL == "" {
		return "", errors.New("api base url is required")
	}
	if path == "" {
		return "", errors.New("api path is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("api base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("api base url host is required")
	}

	endpoint, err := parsed.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse api path: %w", err)
	}
	return endpoint.String(), nil
}
