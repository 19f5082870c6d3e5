// Package remote talks to the agency's remote collection service.
package remote

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
	"time"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/config"
	"go.uber.org/zap"
)

// maxResponseSize is the largest response body read from the service (10MB)
const maxResponseSize = 10 * 1024 * 1024

// DefaultTimeout is the client-side budget of every call
const DefaultTimeout = 8 * time.Second

// TenantHeader carries the tenant on every request
const TenantHeader = "X-Tenant-ID"

// TokenProvider supplies the bearer token attached to writes
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// ListQuery selects one page of a collection
type ListQuery struct {
	Page   int
	Limit  int
	Search string
}

// Pagination is the optional paging block of a list response
type Pagination struct {
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// ListResult is one page of remote records
type ListResult struct {
	Items      []shared.Record
	Pagination *Pagination
}

// envelope is the response shape shared by every endpoint
type envelope struct {
	OK         *bool           `json:"ok"`
	Items      json.RawMessage `json:"items"`
	Item       json.RawMessage `json:"item"`
	Pagination *Pagination     `json:"pagination"`
	Error      json.RawMessage `json:"error"`
	Message    string          `json:"message"`
}

// Client is the HTTP client of the remote collection service
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     TokenProvider
	timeout    time.Duration
	pageSize   int
	logger     *zap.Logger
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTokenProvider sets the source of bearer tokens for writes
func WithTokenProvider(tp TokenProvider) ClientOption {
	return func(c *Client) {
		c.tokens = tp
	}
}

// WithTimeout sets the per-call budget
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPageSize sets the default page size of list calls
func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client for the service at baseURL
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid remote base url %q", baseURL)
	}
	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		pageSize:   50,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewClientFromConfig creates a client from the remote config section
func NewClientFromConfig(cfg config.RemoteConfig, tokens TokenProvider, logger *zap.Logger) (*Client, error) {
	return NewClient(cfg.BaseURL,
		WithTimeout(cfg.Timeout),
		WithPageSize(cfg.PageSize),
		WithTokenProvider(tokens),
		WithLogger(logger),
	)
}

// List fetches one page of collection c for tenant
func (c *Client) List(ctx context.Context, tenant string, coll shared.Collection, q ListQuery) (*ListResult, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = c.pageSize
	}
	params := url.Values{}
	params.Set("tenantId", tenant)
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("limit", strconv.Itoa(q.Limit))
	if q.Search != "" {
		params.Set("search", q.Search)
	}

	env, err := c.do(ctx, "list "+coll.RemotePath(), http.MethodGet, coll, tenant, params, nil, false)
	if err != nil {
		return nil, err
	}
	if len(env.Items) == 0 || string(env.Items) == "null" {
		return nil, fmt.Errorf("%w: list %s has no items", ErrMalformedResponse, coll)
	}
	var items []shared.Record
	if err := json.Unmarshal(env.Items, &items); err != nil {
		return nil, fmt.Errorf("%w: list %s items: %v", ErrMalformedResponse, coll, err)
	}
	return &ListResult{Items: items, Pagination: env.Pagination}, nil
}

// Save posts r and returns the service's canonical echo. When the service
// answers without a record, r itself is returned.
func (c *Client) Save(ctx context.Context, tenant string, coll shared.Collection, r shared.Record) (shared.Record, error) {
	r = r.Clone()
	r.TenantID = tenant
	body, err := json.Marshal(r)
	if err != nil {
		return shared.Record{}, fmt.Errorf("failed to encode %s record: %w", coll, err)
	}
	params := url.Values{}
	params.Set("tenantId", tenant)

	env, err := c.do(ctx, "save "+coll.RemotePath(), http.MethodPost, coll, tenant, params, body, true)
	if err != nil {
		return shared.Record{}, err
	}

	echo, ok, err := canonicalEcho(env)
	if err != nil {
		return shared.Record{}, fmt.Errorf("%w: save %s echo: %v", ErrMalformedResponse, coll, err)
	}
	if !ok {
		return r, nil
	}
	if echo.ID == "" {
		echo.ID = r.ID
	}
	return echo, nil
}

// Delete removes the record id of collection c
func (c *Client) Delete(ctx context.Context, tenant string, coll shared.Collection, id string) error {
	params := url.Values{}
	params.Set("id", id)
	params.Set("tenantId", tenant)
	_, err := c.do(ctx, "delete "+coll.RemotePath(), http.MethodDelete, coll, tenant, params, nil, true)
	return err
}

func canonicalEcho(env *envelope) (shared.Record, bool, error) {
	if len(env.Item) > 0 && string(env.Item) != "null" {
		var r shared.Record
		if err := json.Unmarshal(env.Item, &r); err != nil {
			return shared.Record{}, false, err
		}
		return r, true, nil
	}
	if len(env.Items) > 0 && string(env.Items) != "null" {
		var items []shared.Record
		if err := json.Unmarshal(env.Items, &items); err != nil {
			return shared.Record{}, false, err
		}
		if len(items) > 0 {
			return items[0], true, nil
		}
	}
	return shared.Record{}, false, nil
}

func (c *Client) do(ctx context.Context, op, method string, coll shared.Collection, tenant string, params url.Values, body []byte, write bool) (*envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := *c.baseURL
	u.Path = u.Path + "/" + coll.RemotePath()
	u.RawQuery = params.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(TenantHeader, tenant)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if write && c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to obtain token for %s: %w", op, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("Remote call failed", zap.String("op", op), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrTransient, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading body: %w", ErrTransient, op, err)
	}
	c.logger.Debug("Remote call",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)))

	var env envelope
	decodeErr := json.Unmarshal(data, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ""
		if decodeErr == nil {
			msg = env.errorMessage()
		}
		if resp.StatusCode == http.StatusUnauthorized && write {
			if inv, ok := c.tokens.(interface{ Invalidate() }); ok {
				inv.Invalidate()
			}
		}
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, op, decodeErr)
	}
	if env.OK == nil {
		return nil, fmt.Errorf("%w: %s: missing ok", ErrMalformedResponse, op)
	}
	if !*env.OK {
		return nil, &APIError{Op: op, StatusCode: resp.StatusCode, Message: env.errorMessage()}
	}
	return &env, nil
}

// errorMessage accepts "error" as a string or as an object with a message
func (e *envelope) errorMessage() string {
	if len(e.Error) > 0 {
		var s string
		if err := json.Unmarshal(e.Error, &s); err == nil {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(e.Error, &obj); err == nil && obj.Message != "" {
			return obj.Message
		}
	}
	return e.Message
}

// IsTimeout reports whether err came from the per-call budget running out
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
