package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/poiesic/archivist/core"
)

// OfferAuthorizationHeader carries a replacement token on any response.
const OfferAuthorizationHeader = "X-Offer-Authorization"

// TokenStore loads and persists the auth token for a server.
type TokenStore interface {
	Get(serverURI string) (string, error)
	Set(serverURI, token string) error
}

// Client talks to one catalog server. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenStore
	token      atomic.Pointer[string]
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc != nil {
			c.httpClient = hc
		}
		return nil
	}
}

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		c.httpClient.Timeout = d
		return nil
	}
}

// New creates a client for baseURL, loading its token from tokens.
// A missing token is an auth error. The token is read once here; after
// that the client only sees tokens it rotates itself, so build a new
// client to pick up a login made elsewhere.
func New(baseURL string, tokens TokenStore, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}
	if tokens == nil {
		return nil, ErrTokenStoreRequired
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, &core.InputError{Msg: "invalid server URI " + baseURL, Err: err}
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		tokens: tokens,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	token, err := tokens.Get(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v (run login first)", core.ErrAuth, err)
	}
	c.token.Store(&token)
	return c, nil
}

// BaseURL returns the server URI without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Token returns the token currently sent with requests.
func (c *Client) Token() string {
	return *c.token.Load()
}

// do sends one request and adopts any offered token. The caller closes the
// response body.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &core.SerializationError{Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.Token())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if offered := resp.Header.Get(OfferAuthorizationHeader); offered != "" {
		c.rotate(offered)
	}
	return resp, nil
}

// rotate switches to a server-offered token. Failing to save it only costs
// the next run a login.
func (c *Client) rotate(token string) {
	c.token.Store(&token)
	c.logger.Info("catalog offered a new auth token, refreshing")
	if err := c.tokens.Set(c.baseURL, token); err != nil {
		c.logger.Warn("failed to save refreshed auth token", "err", err)
	}
}

// drain discards the rest of a response so the connection can be reused.
func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

func decode(resp *http.Response, v any) error {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode catalog response: %w", err)
	}
	return nil
}

// statusError maps a rejected status onto the error taxonomy.
func statusError(status int) error {
	if status == http.StatusUnauthorized {
		return core.ErrAuth
	}
	return &core.UnexpectedResponseError{StatusCode: status}
}

func segment(s string) string {
	return url.PathEscape(s)
}
