package protocol

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// maxErrorBody caps how much of a failed response body is kept on a RemoteRequestError.
const maxErrorBody = 64 * 1024

// RequestedBy is sent as X-Requested-By, which the service requires when CSRF
// protection is enabled.
const RequestedBy = "go-livycore"

// RemoteRequestError is returned for any non-2xx response.
type RemoteRequestError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *RemoteRequestError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, body)
}

// IsNotFound reports whether err is a RemoteRequestError with status 404.
func IsNotFound(err error) bool {
	var rerr *RemoteRequestError
	return errors.As(err, &rerr) && rerr.StatusCode == http.StatusNotFound
}

// Client talks to one session service endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	username   string
	password   string
	header     http.Header
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for all requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithBasicAuth sets HTTP basic credentials.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Add(key, value)
	}
}

// NewClient creates a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		header:     make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service endpoint without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SessionURL returns the URL of the session resource.
func (c *Client) SessionURL(id int) string {
	return c.baseURL + "/sessions/" + strconv.Itoa(id)
}

// CreateSession creates a new interactive session.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/sessions", req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSession fetches the current status of a session.
func (c *Client) GetSession(ctx context.Context, id int) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodGet, sessionPath(id), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSessionLog fetches size log lines starting at from. A negative size lets the
// service pick its default.
func (c *Client) GetSessionLog(ctx context.Context, id, from, size int) (*SessionLog, error) {
	q := url.Values{}
	q.Set("from", strconv.Itoa(from))
	if size >= 0 {
		q.Set("size", strconv.Itoa(size))
	}
	var l SessionLog
	if err := c.do(ctx, http.MethodGet, sessionPath(id)+"/log?"+q.Encode(), nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// DeleteSession kills a session.
func (c *Client) DeleteSession(ctx context.Context, id int) error {
	var resp deleteResponse
	return c.do(ctx, http.MethodDelete, sessionPath(id), nil, &resp)
}

// SubmitStatement submits code for execution in a session.
func (c *Client) SubmitStatement(ctx context.Context, sessionID int, req StatementRequest) (*Statement, error) {
	var st Statement
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID)+"/statements", req, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// GetStatement fetches the state and, once complete, the output of a statement.
func (c *Client) GetStatement(ctx context.Context, sessionID, statementID int) (*Statement, error) {
	var st Statement
	if err := c.do(ctx, http.MethodGet, statementPath(sessionID, statementID), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// CancelStatement asks the service to cancel a running statement.
func (c *Client) CancelStatement(ctx context.Context, sessionID, statementID int) error {
	var resp deleteResponse
	return c.do(ctx, http.MethodPost, statementPath(sessionID, statementID)+"/cancel", nil, &resp)
}

func sessionPath(id int) string {
	return "/sessions/" + strconv.Itoa(id)
}

func statementPath(sessionID, statementID int) string {
	return sessionPath(sessionID) + "/statements/" + strconv.Itoa(statementID)
}

// do sends one request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	u := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("X-Requested-By", RequestedBy)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RemoteRequestError{
			Method:     method,
			URL:        u,
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
