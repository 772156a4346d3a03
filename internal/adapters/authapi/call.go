package authapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/averlane/beatlink-cli/internal/domain"
)

// RequestFunc issues one underlying request with the current access token.
// The same func is reused verbatim for the post-refresh retry.
type RequestFunc func(ctx context.Context, accessToken string) (*http.Response, error)

// Do runs fn with the stored access token. On a 401 it refreshes exactly
// once and retries exactly once; a second 401, or any other failure,
// propagates to the caller unchanged. The depth is fixed, never recursive.
func (c *Client) Do(ctx context.Context, fn RequestFunc) (*http.Response, error) {
	resp, err := c.attempt(ctx, fn)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	_ = resp.Body.Close()

	if _, err := c.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("refresh access token: %w", err)
	}

	return c.attempt(ctx, fn)
}

func (c *Client) attempt(ctx context.Context, fn RequestFunc) (*http.Response, error) {
	cred, err := c.Tokens.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read stored credential: %w", err)
	}
	return fn(ctx, cred.AccessToken)
}

// FetchUser loads the profile of the session owner through the
// refresh-and-retry wrapper.
func (c *Client) FetchUser(ctx context.Context) (domain.User, error) {
	endpoint, err := buildAPIURL(c.api().BaseURL, c.api().UserPath)
	if err != nil {
		return domain.User{}, err
	}

	// One timeout budget spans the attempt, the refresh, and the retry. The
	// context stays alive until the body is decoded below.
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	resp, err := c.Do(ctx, func(ctx context.Context, accessToken string) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create user request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		return c.httpClient().Do(req)
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return domain.User{}, fmt.Errorf("fetch user: status %d", resp.StatusCode)
	}

	var user domain.User
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&user); err != nil {
		return domain.User{}, fmt.Errorf("decode user response: %w", err)
	}
	return user, nil
}
