// Package api is the portal's client for the SIMS REST API. It attaches the
// session's bearer token to every request and recovers from token expiry by
// exchanging the refresh token exactly once per failing request.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNoRefreshToken is returned when a 401 cannot be recovered because the
// session holds no refresh token.
var ErrNoRefreshToken = errors.New("api: no refresh token")

// TokenSource provides the current token pair and accepts rotated ones.
// Implementations must be safe for concurrent use.
type TokenSource interface {
	AccessToken() string
	RefreshToken() string
	// SetTokens replaces both tokens after a successful refresh. The new pair
	// must be durable before any retry is issued with it.
	SetTokens(access, refresh string) error
}

// Error is a non-2xx response from the API, carrying the server's detail
// message when one was present.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Detail)
}

// TokenPair is the credential pair issued by the authentication endpoints.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Client talks to the SIMS API on behalf of one session.
type Client struct {
	base   string
	http   *http.Client
	tokens TokenSource

	// onAuthFailure fires when a 401 could not be recovered: the refresh
	// endpoint rejected us, no refresh token exists, or the retried request
	// got a second 401. The session layer hooks logout here.
	onAuthFailure func()

	refreshing singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource attaches the session's tokens to every request.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithAuthFailureHook registers the callback invoked on unrecoverable 401s.
func WithAuthFailureHook(f func()) Option {
	return func(c *Client) { c.onAuthFailure = f }
}

// New creates a client bound to the API origin.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do issues an authenticated request. On a 401 it performs the single
// refresh-then-retry-once recovery; a second 401 is propagated as-is, never
// retried again.
func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	token := ""
	if c.tokens != nil {
		token = c.tokens.AccessToken()
	}

	data, status, err := c.roundTrip(ctx, method, path, contentType, body, token)
	if err != nil {
		return nil, err
	}
	if status != http.StatusUnauthorized {
		return checkStatus(data, status)
	}

	newToken, refreshErr := c.refresh(ctx, token)
	if refreshErr != nil {
		slog.Warn("token refresh failed", "path", path, "error", refreshErr)
		c.authFailed()
		return checkStatus(data, status)
	}

	data, status, err = c.roundTrip(ctx, method, path, contentType, body, newToken)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		c.authFailed()
	}
	return checkStatus(data, status)
}

// refresh exchanges the refresh token for a new pair. Concurrent callers
// coalesce onto a single in-flight exchange and share its result; a caller
// arriving after the exchange finished reuses the rotated token instead of
// spending the new refresh token on a redundant exchange.
func (c *Client) refresh(ctx context.Context, staleAccess string) (string, error) {
	v, err, _ := c.refreshing.Do("refresh", func() (any, error) {
		if c.tokens == nil {
			return nil, ErrNoRefreshToken
		}
		if cur := c.tokens.AccessToken(); cur != "" && cur != staleAccess {
			return cur, nil
		}
		if c.tokens.RefreshToken() == "" {
			return nil, ErrNoRefreshToken
		}
		pair, err := c.Refresh(ctx, c.tokens.RefreshToken())
		if err != nil {
			return nil, err
		}
		if err := c.tokens.SetTokens(pair.AccessToken, pair.RefreshToken); err != nil {
			return nil, fmt.Errorf("store rotated tokens: %w", err)
		}
		return pair.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Refresh exchanges a refresh token for a rotated pair. Exposed for the
// session layer; normal callers rely on the implicit 401 recovery instead.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return TokenPair{}, err
	}
	data, status, err := c.roundTrip(ctx, http.MethodPost, "/auth/refresh", "application/json", body, "")
	if err != nil {
		return TokenPair{}, err
	}
	if _, err := checkStatus(data, status); err != nil {
		return TokenPair{}, err
	}
	var pair TokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return TokenPair{}, fmt.Errorf("decode token pair: %w", err)
	}
	return pair, nil
}

func (c *Client) authFailed() {
	if c.onAuthFailure != nil {
		c.onAuthFailure()
	}
}

// roundTrip performs one HTTP exchange and drains the body. It never retries.
func (c *Client) roundTrip(ctx context.Context, method, path, contentType string, body []byte, token string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	return data, resp.StatusCode, nil
}

// checkStatus maps a non-2xx response to *Error with the server's detail.
func checkStatus(data []byte, status int) ([]byte, error) {
	if status >= 200 && status < 300 {
		return data, nil
	}
	return nil, &Error{Status: status, Detail: errorDetail(data, status)}
}

// errorDetail extracts the user-visible message from an error body. The API
// responds with {"detail": "..."}; some endpoints use {"error": "..."}.
func errorDetail(data []byte, status int) string {
	var body struct {
		Detail string `json:"detail"`
		Err    string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Detail != "" {
			return body.Detail
		}
		if body.Err != "" {
			return body.Err
		}
	}
	return http.StatusText(status)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	data, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	return c.sendJSON(ctx, http.MethodPost, path, in, out)
}

func (c *Client) putJSON(ctx context.Context, path string, in, out any) error {
	return c.sendJSON(ctx, http.MethodPut, path, in, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
	}
	data, err := c.do(ctx, method, path, "application/json", body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	data, err := c.do(ctx, http.MethodPost, path, "application/x-www-form-urlencoded", []byte(form.Encode()))
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, path, "", nil)
	return err
}
