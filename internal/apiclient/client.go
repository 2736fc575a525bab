// Package apiclient talks to the shelfstream REST API on behalf of a signed in
// (or anonymous) reader.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// DefaultTimeout bounds every request made with a default client
const DefaultTimeout = 30 * time.Second

var (
	// ErrUnauthenticated is returned, without touching the network, by calls
	// that need a token when none is stored
	ErrUnauthenticated = errors.New("not signed in")
	// ErrMalformedResponse wraps bodies that do not decode into the expected shape
	ErrMalformedResponse = errors.New("malformed response")
)

// APIError is a non-2xx response. Message comes from the JSON {error} body
// when the server sent one.
type APIError struct {
	Status  int
	Message string
	Path    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Path, e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the API
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client is a REST client for the shelfstream API
type Client struct {
	baseURL *url.URL
	http    *http.Client
	tokens  TokenSource
}

// Option customises a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a Client for baseURL, e.g. "http://localhost:8080"
func New(baseURL string, tokens TokenSource, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid base URL %q", baseURL)
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: DefaultTimeout},
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Authenticated reports whether a token is available
func (c *Client) Authenticated() bool {
	tok, err := c.tokens.Token()
	return err == nil && tok != ""
}

type authMode int

const (
	// public requests send the token when there is one
	public authMode = iota
	// private requests fail with ErrUnauthenticated when there is none
	private
)

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	raw    io.Reader
	ctype  string
	auth   authMode
}

// escape makes id a single path segment, so ids holding slashes or dot
// segments cannot reach another route.
func escape(id string) string {
	switch id {
	case ".", "..":
		return strings.ReplaceAll(id, ".", "%2E")
	}
	return url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, req request, out any) error {
	token, err := c.tokens.Token()
	if err != nil {
		return errors.Wrap(err, "failed to read token")
	}
	if req.auth == private && token == "" {
		return ErrUnauthenticated
	}

	u := c.baseURL.JoinPath(req.path)
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	body := req.raw
	ctype := req.ctype
	if req.body != nil {
		buf, err := json.Marshal(req.body)
		if err != nil {
			return errors.Wrapf(err, "failed to encode %s %s", req.method, req.path)
		}
		body = bytes.NewReader(buf)
		ctype = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if ctype != "" {
		httpReq.Header.Set("Content-Type", ctype)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "%s %s failed", req.method, req.path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "failed to read %s response", req.path)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Path: req.path, Message: http.StatusText(resp.StatusCode)}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &payload) == nil {
			switch {
			case payload.Error != "":
				apiErr.Message = payload.Error
			case payload.Message != "":
				apiErr.Message = payload.Message
			}
		}
		jww.DEBUG.Printf("%s %s returned %d: %s", req.method, req.path, resp.StatusCode, apiErr.Message)
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		jww.WARN.Printf("unexpected %s body: %v", req.path, err)
		return errors.Wrapf(ErrMalformedResponse, "%s: %v", req.path, err)
	}
	return nil
}
