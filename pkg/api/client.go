// Package api wraps the marketing backend's HTTP API: URL building, the
// query-param bearer token, JSON envelopes and typed failures.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/3-electric-sheep/wisdk-go/pkg/domain"
)

// AuthMode controls whether a call carries the access token.
type AuthMode int

const (
	// AuthIfPresent attaches the token when one is held.
	AuthIfPresent AuthMode = iota
	// RequireAuth always attaches the current token.
	RequireAuth
	// NoAuth never attaches a token (registration/login).
	NoAuth
)

// Envelope is the response wrapper every API call returns.
type Envelope struct {
	Success bool                `json:"success"`
	Code    int                 `json:"code,omitempty"`
	Msg     string              `json:"msg,omitempty"`
	Errors  []domain.FieldError `json:"errors,omitempty"`
}

// BusinessError converts a failed envelope into a typed error.
func (e *Envelope) BusinessError() *domain.BusinessError {
	return &domain.BusinessError{Code: e.Code, Msg: e.Msg, Errors: e.Errors}
}

// Client is the authenticated HTTP transport. Token state is guarded so
// that every call reads the latest token rather than a snapshot.
type Client struct {
	httpc  *http.Client
	logger *slog.Logger

	mu          sync.RWMutex
	endpoint    string
	accessToken string
	headers     http.Header
}

// NewClient creates a transport against the given endpoint.
func NewClient(endpoint string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpc:    &http.Client{Timeout: 60 * time.Second},
		logger:   logger,
		endpoint: endpoint,
	}
}

// SetHTTPClient swaps the underlying http.Client (tests, custom timeouts).
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.httpc = hc
}

// SetEndpoint points the client at a different server.
func (c *Client) SetEndpoint(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoint = endpoint
}

// Endpoint returns the current server base URL.
func (c *Client) Endpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint
}

// SetHeaders sets extra headers sent with every request.
func (c *Client) SetHeaders(h http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers = h
}

// SetAccessToken installs a new bearer token.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// AccessToken returns the current bearer token, empty if unauthorized.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// IsAuthorized reports whether the client holds an access token.
func (c *Client) IsAuthorized() bool {
	return c.AccessToken() != ""
}

// ClearAuth drops the access token.
func (c *Client) ClearAuth() {
	c.SetAccessToken("")
}

// URL builds a full request URL, appending the bearer token as a query
// parameter when auth is requested. The server reads the token from
// ?token= (or &token= when the path already carries a query string),
// never from a header.
func (c *Client) URL(path string, auth bool) string {
	c.mu.RLock()
	endpoint, token := c.endpoint, c.accessToken
	c.mu.RUnlock()

	sep := ""
	if !strings.HasPrefix(path, "/") {
		sep = "/"
	}
	tok := ""
	if auth && token != "" {
		if strings.Contains(path, "?") {
			tok = "&token=" + token
		} else {
			tok = "?token=" + token
		}
	}
	return endpoint + sep + path + tok
}

// Call performs one HTTP request. A JSON body is sent when body is
// non-nil. 2xx responses decode into out according to the response
// content type: application/json into any out, text/* into *string,
// anything else into *[]byte. Non-2xx responses become a
// *domain.TransportError carrying the status and raw body.
func (c *Client) Call(ctx context.Context, method, path string, body any, out any, mode AuthMode) error {
	auth := mode == RequireAuth || (mode == AuthIfPresent && c.IsAuthorized())

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, auth), reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	httpc := c.httpc
	c.mu.RUnlock()

	resp, err := httpc.Do(req)
	if err != nil {
		return domain.NewTransportError(0, err.Error(), nil)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("api call failed",
			"method", method, "path", path, "status", resp.StatusCode)
		return domain.NewTransportError(resp.StatusCode, http.StatusText(resp.StatusCode), raw)
	}

	if out == nil {
		return nil
	}

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "application/json"):
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	case strings.Contains(contentType, "text/"):
		if s, ok := out.(*string); ok {
			*s = string(raw)
		} else if b, ok := out.(*[]byte); ok {
			*b = raw
		} else {
			return fmt.Errorf("text response needs *string target, got %T", out)
		}
	default:
		if b, ok := out.(*[]byte); ok {
			*b = raw
		} else {
			return fmt.Errorf("binary response needs *[]byte target, got %T", out)
		}
	}
	return nil
}

// enveloped is satisfied by response structs that embed Envelope.
type enveloped interface {
	envelope() *Envelope
}

func (e *Envelope) envelope() *Envelope { return e }

// CallAPI is Call for enveloped endpoints: a 2xx response with
// success=false is surfaced as a *domain.BusinessError.
func (c *Client) CallAPI(ctx context.Context, method, path string, body any, out enveloped, mode AuthMode) error {
	if err := c.Call(ctx, method, path, body, out, mode); err != nil {
		return err
	}
	env := out.envelope()
	if !env.Success {
		return env.BusinessError()
	}
	return nil
}
