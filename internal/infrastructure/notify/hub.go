// Package notify delivers operator toasts: to WebSocket subscribers, to the
// log, and to a short in-memory history for clients that poll.
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultBuffer  = 32
	defaultHistory = 100
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
)

// Subscription receives the notifications of one tenant, or of every tenant
// when Tenant is empty
type Subscription struct {
	ID     string
	Tenant string
	ch     chan shared.Notification
	done   chan struct{}
	once   sync.Once
}

// C returns the delivery channel
func (s *Subscription) C() <-chan shared.Notification {
	return s.ch
}

// Done is closed when the subscription ends
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) wants(n shared.Notification) bool {
	return s.Tenant == "" || n.TenantID == "" || n.TenantID == s.Tenant
}

// Hub fans notifications out to subscribers. Slow subscribers lose
// notifications instead of blocking the publisher.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	history []shared.Notification
	limit   int
	buffer  int
	dropped int
	logger  *zap.Logger

	upgrader websocket.Upgrader
}

var _ shared.Notifier = (*Hub)(nil)

// HubOption configures a Hub
type HubOption func(*Hub)

// WithHistory sets how many notifications Recent can return
func WithHistory(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.limit = n
		}
	}
}

// WithBuffer sets the per-subscriber channel size
func WithBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithHubLogger sets the logger
func WithHubLogger(l *zap.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithCheckOrigin overrides the WebSocket origin check
func WithCheckOrigin(fn func(r *http.Request) bool) HubOption {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = fn
	}
}

// NewHub creates a hub
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:   make(map[string]*Subscription),
		limit:  defaultHistory,
		buffer: defaultBuffer,
		logger: zap.NewNop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Notify implements shared.Notifier
func (h *Hub) Notify(_ context.Context, n shared.Notification) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.history = append(h.history, n)
	if len(h.history) > h.limit {
		h.history = append([]shared.Notification(nil), h.history[len(h.history)-h.limit:]...)
	}
	for _, sub := range h.subs {
		if !sub.wants(n) {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			h.dropped++
			h.logger.Warn("Notification dropped for slow subscriber",
				zap.String("subscription", sub.ID),
				zap.String("code", n.Code))
		}
	}
}

// Subscribe registers a subscriber for tenant
func (h *Hub) Subscribe(tenant string) *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		Tenant: tenant,
		ch:     make(chan shared.Notification, h.buffer),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscriber. Safe to call more than once.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()
	if ok {
		sub.once.Do(func() { close(sub.done) })
	}
}

// Count returns the number of subscribers
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were lost to full buffers
func (h *Hub) Dropped() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Recent returns up to n notifications of tenant, newest last
func (h *Hub) Recent(tenant string, n int) []shared.Notification {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]shared.Notification, 0, n)
	for i := len(h.history) - 1; i >= 0 && len(out) < n; i-- {
		it := h.history[i]
		if tenant == "" || it.TenantID == "" || it.TenantID == tenant {
			out = append(out, it)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Message is the JSON frame written to WebSocket clients
type Message struct {
	Type         string               `json:"type"`
	Notification *shared.Notification `json:"notification,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// ServeWS upgrades the request and streams the tenant's notifications until
// the client goes away
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, tenant string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	sub := h.Subscribe(tenant)
	defer h.Unsubscribe(sub.ID)
	h.logger.Debug("Notification stream opened", zap.String("subscription", sub.ID), zap.String("tenant", tenant))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// the reader only notices close frames and keeps the read deadline alive
	go func() {
		defer cancel()
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.write(conn, Message{Type: "subscribed"}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case n := <-sub.C():
			if err := h.write(conn, Message{Type: "notification", Notification: &n}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
