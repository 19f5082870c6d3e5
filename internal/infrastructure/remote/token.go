package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// DefaultTokenLeeway is how long before expiry a cached token is replaced
const DefaultTokenLeeway = 3 * time.Minute

// Credentials identify the agent to the token endpoint
type Credentials struct {
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	TenantID     string `json:"tenantId,omitempty"`
}

// TokenSource obtains bearer tokens from POST /auth/token and caches them
// until they are within the leeway of their expiry.
type TokenSource struct {
	mu         sync.Mutex
	endpoint   string
	creds      Credentials
	httpClient *http.Client
	leeway     time.Duration
	timeout    time.Duration
	now        func() time.Time
	logger     *zap.Logger

	token     string
	expiresAt time.Time
}

// TokenSourceOption configures a TokenSource
type TokenSourceOption func(*TokenSource)

// WithLeeway sets the minimum remaining lifetime of a reused token
func WithLeeway(d time.Duration) TokenSourceOption {
	return func(s *TokenSource) {
		if d > 0 {
			s.leeway = d
		}
	}
}

// WithTokenHTTPClient replaces the underlying HTTP client
func WithTokenHTTPClient(hc *http.Client) TokenSourceOption {
	return func(s *TokenSource) {
		if hc != nil {
			s.httpClient = hc
		}
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(l *zap.Logger) TokenSourceOption {
	return func(s *TokenSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) TokenSourceOption {
	return func(s *TokenSource) {
		s.now = now
	}
}

// NewTokenSource creates a token source for the service at baseURL
func NewTokenSource(baseURL string, creds Credentials, opts ...TokenSourceOption) *TokenSource {
	s := &TokenSource{
		endpoint:   strings.TrimRight(baseURL, "/") + "/auth/token",
		creds:      creds,
		httpClient: &http.Client{},
		leeway:     DefaultTokenLeeway,
		timeout:    DefaultTimeout,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetTenant changes the tenant the token is requested for and drops the cached token
func (s *TokenSource) SetTenant(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creds.TenantID != tenantID {
		s.creds.TenantID = tenantID
		s.token = ""
	}
}

// Invalidate drops the cached token so the next call fetches a new one
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// ExpiresAt returns the expiry of the cached token, zero when none is cached
func (s *TokenSource) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return time.Time{}
	}
	return s.expiresAt
}

// Token implements TokenProvider. A cached token is reused while more than
// the leeway remains before it expires; a token of unknown expiry is never reused.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && !s.expiresAt.IsZero() && s.expiresAt.Sub(s.now()) > s.leeway {
		return s.token, nil
	}
	token, expiresAt, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	s.token = token
	s.expiresAt = expiresAt
	s.logger.Debug("Remote token refreshed", zap.Time("expires_at", expiresAt))
	return token, nil
}

type tokenResponse struct {
	OK        *bool           `json:"ok"`
	Token     string          `json:"token"`
	ExpiresAt json.RawMessage `json:"expiresAt"`
	Error     string          `json:"error"`
}

func (s *TokenSource) fetch(ctx context.Context) (string, time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := json.Marshal(s.creds)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to encode token request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.creds.TenantID != "" {
		req.Header.Set(TenantHeader, s.creds.TenantID)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: token: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: token: reading body: %w", ErrTransient, err)
	}
	var tr tokenResponse
	decodeErr := json.Unmarshal(data, &tr)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", time.Time{}, &APIError{Op: "token", StatusCode: resp.StatusCode, Message: tr.Error}
	}
	if decodeErr != nil || tr.OK == nil {
		return "", time.Time{}, fmt.Errorf("%w: token response", ErrMalformedResponse)
	}
	if !*tr.OK || tr.Token == "" {
		return "", time.Time{}, &APIError{Op: "token", StatusCode: resp.StatusCode, Message: tr.Error}
	}

	expiresAt, ok := parseExpiry(tr.ExpiresAt)
	if !ok {
		expiresAt = jwtExpiry(tr.Token)
	}
	return tr.Token, expiresAt, nil
}

// parseExpiry accepts an RFC 3339 string, a numeric string or a number of
// seconds or milliseconds since the epoch
func parseExpiry(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, true
		}
		raw = json.RawMessage(s)
	}
	n, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || n <= 0 {
		return time.Time{}, false
	}
	if n > 1e12 {
		return time.UnixMilli(int64(n)), true
	}
	return time.Unix(int64(n), 0), true
}

// jwtExpiry reads exp from a JWT without verifying it. The agent is not the
// audience of the token, it only needs to know when to refresh.
func jwtExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Refresher keeps a TokenSource warm on a ticker while a session is active
type Refresher struct {
	source   *TokenSource
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRefresher creates a refresher. interval defaults to one minute.
func NewRefresher(source *TokenSource, interval time.Duration, logger *zap.Logger) *Refresher {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{source: source, interval: interval, logger: logger}
}

// Start begins refreshing. Calling Start on a running refresher is a no-op.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx, r.done)
}

// Stop ends refreshing and waits for the loop to exit
func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the refresher is active
func (r *Refresher) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

func (r *Refresher) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	if _, err := r.source.Token(ctx); err != nil && ctx.Err() == nil {
		r.logger.Warn("Remote token refresh failed", zap.Error(err))
	}
}
