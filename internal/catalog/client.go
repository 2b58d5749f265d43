// Package catalog implements the authenticated REST transport to the
// STAC API server.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// API is the catalog surface the orchestrator depends on.
type API interface {
	// CreateOrUpdate creates record at path; a 409 conflict is retried
	// as an update. Callers cannot distinguish the two outcomes.
	CreateOrUpdate(ctx context.Context, path string, record any) error

	// GetJSON fetches path and decodes the response body into out.
	GetJSON(ctx context.Context, path string, out any) error

	// Exists reports whether the resource at path exists:
	// 200 is true, 404 is false, anything else is an error.
	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes the resource at path. Returns false without error
	// when the resource was already absent.
	Delete(ctx context.Context, path string) (bool, error)
}

// Credentials authenticate against the catalog's token endpoint.
type Credentials struct {
	Username string
	Password string
}

// Client talks to the catalog server carrying a bearer token that is
// refreshed transparently when the server reports it expired.
type Client struct {
	base     *url.URL
	authPath string
	creds    Credentials
	http     *http.Client
	token    string
	log      *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger overrides the client's logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a catalog client for baseURL. No network call happens until
// the first request; authentication is lazy.
func New(baseURL, authPath string, creds Credentials, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse catalog url %q: %w", baseURL, err)
	}
	c := &Client{
		base:     base,
		authPath: authPath,
		creds:    creds,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      slog.With("component", "catalog"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL resolves path against the catalog base URL.
func (c *Client) URL(path string) string {
	ref := &url.URL{Path: path}
	return c.base.ResolveReference(ref).String()
}

// Authenticate obtains a fresh bearer token from the auth endpoint.
func (c *Client) Authenticate(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.creds.Username)
	form.Set("password", c.creds.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL(c.authPath),
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("authentication failed: %s: %s", resp.Status, errDetail(body))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.AccessToken == "" {
		return fmt.Errorf("authentication failed: no token received")
	}

	c.token = payload.AccessToken
	c.log.Debug("token refreshed")
	return nil
}

// do performs one request, re-authenticating and retrying once when the
// server reports an expired or missing token.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, []byte, error) {
	if c.token == "" {
		if err := c.Authenticate(ctx); err != nil {
			return nil, nil, err
		}
	}

	resp, respBody, err := c.send(ctx, method, path, body)
	if err != nil {
		return nil, nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.log.Info("token rejected, re-authenticating", "path", path)
		if err := c.Authenticate(ctx); err != nil {
			return nil, nil, err
		}
		resp, respBody, err = c.send(ctx, method, path, body)
		if err != nil {
			return nil, nil, err
		}
	}

	return resp, respBody, nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), reader)
	if err != nil {
		return nil, nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: read response: %w", method, path, err)
	}
	return resp, respBody, nil
}

// CreateOrUpdate posts record to path, falling back to a PUT on the
// resource when the server answers 409.
func (c *Client) CreateOrUpdate(ctx context.Context, path string, record any) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record for %s: %w", path, err)
	}

	resp, respBody, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusConflict {
		id := recordID(record)
		updatePath := path
		if id != "" {
			updatePath = strings.TrimSuffix(path, "/") + "/" + id
		}
		resp, respBody, err = c.do(ctx, http.MethodPut, updatePath, body)
		if err != nil {
			return err
		}
		// Some servers answer an unchanged update with 404; the record
		// is already in place.
		if resp.StatusCode == http.StatusNotFound {
			return nil
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upload to %s failed: %s: %s", path, resp.Status, errDetail(respBody))
	}
	return nil
}

// GetJSON fetches path and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	resp, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s failed: %s: %s", path, resp.Status, errDetail(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}

// Exists checks for the resource at path: 200 is true, 404 is false,
// any other status is a transport error.
func (c *Client) Exists(ctx context.Context, path string) (bool, error) {
	resp, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("check %s failed: %s: %s", path, resp.Status, errDetail(body))
	}
}

// Delete removes the resource at path. A 404 is reported as "was not
// there" without error.
func (c *Client) Delete(ctx context.Context, path string) (bool, error) {
	resp, body, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return false, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("delete %s failed: %s: %s", path, resp.Status, errDetail(body))
	}
}

// recordID pulls an "id" field from a record for conflict retries.
func recordID(record any) string {
	data, err := json.Marshal(record)
	if err != nil {
		return ""
	}
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return probe.ID
}

// errDetail extracts a server-provided message from an error body.
func errDetail(body []byte) string {
	var m map[string]any
	if json.Unmarshal(body, &m) == nil {
		for _, key := range []string{"description", "message", "detail"} {
			if msg, ok := m[key].(string); ok && msg != "" {
				return msg
			}
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
