// Package backend is the REST client for the remote Totally Indian API. It
// owns bearer-token injection and refresh-token rotation; a 401 triggers a
// single in-flight refresh shared by all concurrent callers, after which the
// failed request is retried once.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/d2Anubis/totally-shopcore/internal/localstore"
)

var (
	errClientBaseURLRequired = errors.New("backend: base url is required")
	errClientStoreRequired   = errors.New("backend: token store is required")
)

const refreshFlightKey = "token-refresh"

// ClientDeps wires the transport dependencies.
type ClientDeps struct {
	BaseURL     string
	UserAgent   string
	Timeout     time.Duration
	RefreshSkew time.Duration
	Store       localstore.Store
	HTTPClient  *http.Client
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
}

// Client is the thin HTTP wrapper over the backend endpoints.
type Client struct {
	baseURL     *url.URL
	userAgent   string
	httpClient  *http.Client
	store       localstore.Store
	refreshSkew time.Duration
	now         func() time.Time
	logger      func(context.Context, string, map[string]any)
	refresh     singleflight.Group
}

// NewClient validates the dependencies and constructs the client.
func NewClient(deps ClientDeps) (*Client, error) {
	base := strings.TrimSpace(deps.BaseURL)
	if base == "" {
		return nil, errClientBaseURLRequired
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q", errClientBaseURLRequired, deps.BaseURL)
	}
	if deps.Store == nil {
		return nil, errClientStoreRequired
	}

	httpClient := deps.HTTPClient
	if httpClient == nil {
		timeout := deps.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	skew := deps.RefreshSkew
	if skew <= 0 {
		skew = 30 * time.Second
	}

	return &Client{
		baseURL:     parsed,
		userAgent:   strings.TrimSpace(deps.UserAgent),
		httpClient:  httpClient,
		store:       deps.Store,
		refreshSkew: skew,
		now:         now,
		logger:      logger,
	}, nil
}

type requestOptions struct {
	method        string
	path          string
	query         url.Values
	body          any
	authenticated bool
}

// do performs the request, decoding the 2xx body into out when non-nil.
func (c *Client) do(ctx context.Context, opts requestOptions, out any) error {
	attempt := func(token string) (int, []byte, error) {
		return c.roundTrip(ctx, opts, token)
	}

	token := ""
	if opts.authenticated {
		tokens, ok := c.loadTokens(ctx)
		if !ok {
			return ErrAuthExpired
		}
		if accessTokenStale(tokens.Access, c.now().UTC(), c.refreshSkew) {
			refreshed, err := c.refreshTokens(ctx)
			if err != nil {
				return err
			}
			tokens = refreshed
		}
		token = tokens.Access
	}

	status, body, err := attempt(token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && opts.authenticated {
		refreshed, err := c.refreshTokens(ctx)
		if err != nil {
			return err
		}
		status, body, err = attempt(refreshed.Access)
		if err != nil {
			return err
		}
	}

	if status < 200 || status > 299 {
		return c.errorFromResponse(status, body, opts.authenticated)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("backend: decode %s %s response: %w", opts.method, opts.path, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, opts requestOptions, token string) (int, []byte, error) {
	target := c.baseURL.JoinPath(opts.path)
	if len(opts.query) > 0 {
		target.RawQuery = opts.query.Encode()
	}

	var reader io.Reader
	if opts.body != nil {
		encoded, err := json.Marshal(opts.body)
		if err != nil {
			return 0, nil, fmt.Errorf("backend: encode %s %s request: %w", opts.method, opts.path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, opts.method, target.String(), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("backend: build %s %s request: %w", opts.method, opts.path, err)
	}
	req.Header.Set("Accept", "application/json")
	if opts.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("backend: %s %s: %w", opts.method, opts.path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("backend: read %s %s response: %w", opts.method, opts.path, err)
	}
	return resp.StatusCode, body, nil
}

// refreshTokens rotates the token pair. Concurrent callers share one refresh
// request; when it fails every waiter receives ErrAuthExpired and the stored
// tokens are cleared.
func (c *Client) refreshTokens(ctx context.Context) (Tokens, error) {
	result, err, _ := c.refresh.Do(refreshFlightKey, func() (any, error) {
		tokens, ok := c.loadTokens(ctx)
		if !ok {
			return Tokens{}, ErrAuthExpired
		}

		status, body, err := c.roundTrip(ctx, requestOptions{
			method: http.MethodPost,
			path:   "/user/auth/refresh",
			body:   map[string]string{"refresh_token": tokens.Refresh},
		}, "")
		if err != nil {
			return Tokens{}, err
		}
		if status < 200 || status > 299 {
			c.logger(ctx, "backend.token_refresh_failed", map[string]any{"status": status})
			c.ClearTokens(ctx)
			return Tokens{}, ErrAuthExpired
		}

		var rotated Tokens
		if err := json.Unmarshal(body, &rotated); err != nil || !rotated.valid() {
			c.logger(ctx, "backend.token_refresh_failed", map[string]any{"error": "malformed refresh response"})
			c.ClearTokens(ctx)
			return Tokens{}, ErrAuthExpired
		}

		if err := c.saveTokens(ctx, rotated); err != nil {
			return Tokens{}, err
		}
		c.logger(ctx, "backend.token_refreshed", nil)
		return rotated, nil
	})
	if err != nil {
		return Tokens{}, err
	}
	return result.(Tokens), nil
}

// errorFromResponse decodes the backend's error payload. A 401 only means an
// expired session on authenticated requests; on public endpoints such as login
// it carries the backend's own message (wrong password and the like).
func (c *Client) errorFromResponse(status int, body []byte, authenticated bool) error {
	apiErr := &APIError{Status: status}

	var payload struct {
		Message   string `json:"message"`
		Error     string `json:"error"`
		ErrorCode string `json:"error_code"`
	}
	if len(body) > 0 && json.Unmarshal(body, &payload) == nil {
		apiErr.Message = strings.TrimSpace(payload.Message)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(payload.Error)
		}
		apiErr.Code = strings.TrimSpace(payload.ErrorCode)
	}

	if (authenticated && status == http.StatusUnauthorized) || strings.EqualFold(apiErr.Code, authFailedCode) {
		return fmt.Errorf("%w: %s", ErrAuthExpired, apiErr.Error())
	}
	return apiErr
}
