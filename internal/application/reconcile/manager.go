package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"go.uber.org/zap"
)

// TenantStore is the part of the local store the manager needs to switch tenants
type TenantStore interface {
	LocalStore
	SetActiveTenant(ctx context.Context, tenantID string) error
}

// Manager owns one reconciler per synced collection
type Manager struct {
	store       TenantStore
	reconcilers map[shared.Collection]*Reconciler
	logger      *zap.Logger

	mu       sync.Mutex
	onSwitch []func(tenantID string)
}

// NewManager creates reconcilers for every synced collection sharing opts
func NewManager(store TenantStore, rem Remote, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		store:       store,
		reconcilers: make(map[shared.Collection]*Reconciler),
		logger:      logger,
	}
	for _, c := range shared.SyncedCollections() {
		m.reconcilers[c] = NewReconciler(c, store, rem, append([]Option{WithLogger(logger)}, opts...)...)
	}
	return m
}

// For returns the reconciler of c
func (m *Manager) For(c shared.Collection) (*Reconciler, bool) {
	r, ok := m.reconcilers[c]
	return r, ok
}

// MustFor returns the reconciler of c and panics when c is not synced
func (m *Manager) MustFor(c shared.Collection) *Reconciler {
	r, ok := m.reconcilers[c]
	if !ok {
		panic(fmt.Sprintf("reconcile: collection %q is not synced", c))
	}
	return r
}

// Pull runs a pull of collection c and waits for it
func (m *Manager) Pull(ctx context.Context, c shared.Collection, key PullKey) (PullResult, error) {
	r, ok := m.reconcilers[c]
	if !ok {
		return PullResult{}, shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("collection %q is not synced", c))
	}
	return r.Pull(ctx, key)
}

// Statuses returns the status of every reconciler in display order
func (m *Manager) Statuses() []Status {
	out := make([]Status, 0, len(m.reconcilers))
	for _, c := range shared.SyncedCollections() {
		out = append(out, m.reconcilers[c].Status())
	}
	return out
}

// InvalidateAll forgets every completed key
func (m *Manager) InvalidateAll() {
	for _, r := range m.reconcilers {
		r.Invalidate()
	}
}

// OnTenantSwitch registers a callback run after the active tenant changed
func (m *Manager) OnTenantSwitch(fn func(tenantID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSwitch = append(m.onSwitch, fn)
}

// SwitchTenant changes the active tenant. Pulls in flight for the previous
// tenant are superseded and every collection pulls again on its next view.
func (m *Manager) SwitchTenant(ctx context.Context, tenantID string) error {
	if tenantID == m.store.ActiveTenant() {
		return nil
	}
	err := m.store.SetActiveTenant(ctx, tenantID)
	if m.store.ActiveTenant() != tenantID {
		return err
	}
	for _, r := range m.reconcilers {
		r.Reset()
	}
	m.mu.Lock()
	callbacks := append([]func(string){}, m.onSwitch...)
	m.mu.Unlock()
	for _, fn := range callbacks {
		fn(tenantID)
	}
	m.logger.Info("Active tenant switched", zap.String("tenant", tenantID))
	return err
}

// Wait blocks until background work of every reconciler has finished
func (m *Manager) Wait() {
	for _, r := range m.reconcilers {
		r.Wait()
	}
}
