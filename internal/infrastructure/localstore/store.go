// Package localstore holds the tenant-scoped local cache every component reads
// and writes through. The whole document is persisted to a durable slot after
// every mutation.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"go.uber.org/zap"
)

// ErrTenantChanged is returned by the tenant-guarded writes when the active
// tenant is no longer the one the caller captured. Nothing is written.
var ErrTenantChanged = errors.New("active tenant changed")

// ErrCorruptSnapshot is returned by Load when the persisted snapshot cannot be
// decoded and the slot could not keep a copy of it aside.
var ErrCorruptSnapshot = errors.New("local snapshot is unreadable")

// PersistHook observes every persist attempt
type PersistHook func(bytes int, elapsed time.Duration, err error)

// Store is the single source of truth for all collections during a session.
// A failed persist leaves the in-memory mutation applied; the caller decides
// whether to compact, roll back or just tell the operator.
type Store struct {
	mu        sync.Mutex
	slot      Slot
	codec     Codec
	compactor *Compactor
	logger    *zap.Logger
	onPersist PersistHook
	tenant    string
	doc       Document
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCodec sets the snapshot codec
func WithCodec(c Codec) Option {
	return func(s *Store) {
		s.codec = c
	}
}

// WithCompactor sets the compaction cascade used by SaveWithCompaction
func WithCompactor(c *Compactor) Option {
	return func(s *Store) {
		if c != nil {
			s.compactor = c
		}
	}
}

// WithTenant sets the tenant active until Load restores a persisted one
func WithTenant(tenantID string) Option {
	return func(s *Store) {
		if tenantID != "" {
			s.tenant = tenantID
		}
	}
}

// WithPersistHook registers a persist observer, typically metrics
func WithPersistHook(h PersistHook) Option {
	return func(s *Store) {
		s.onPersist = h
	}
}

// New creates a store over slot. Call Load before use to read the persisted snapshot.
func New(slot Slot, opts ...Option) *Store {
	s := &Store{
		slot:      slot,
		codec:     Codec{Compression: CompressionNone},
		compactor: NewCompactor(),
		logger:    zap.NewNop(),
		tenant:    shared.DefaultTenantID,
		doc:       newDocument(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the snapshot once at startup. An unreadable snapshot is copied
// aside through the slot's Archiver before the agent starts empty, so the next
// persist cannot destroy it. Without a copy Load fails with ErrCorruptSnapshot.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.slot.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load local snapshot: %w", err)
	}
	doc, err := s.codec.Decode(data)
	if err != nil {
		location, aerr := archive(ctx, s.slot, data)
		if aerr != nil {
			s.logger.Error("Local snapshot is unreadable and could not be set aside",
				zap.Error(err), zap.NamedError("archive_error", aerr), zap.Int("bytes", len(data)))
			return fmt.Errorf("%w: %v (archive: %v)", ErrCorruptSnapshot, err, aerr)
		}
		s.logger.Error("Local snapshot is unreadable, starting empty",
			zap.Error(err),
			zap.Int("bytes", len(data)),
			zap.String("archived_to", location))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
	if doc.Meta.ActiveTenant != "" {
		s.tenant = doc.Meta.ActiveTenant
	}
	s.logger.Info("Local snapshot loaded",
		zap.Int("bytes", len(data)),
		zap.String("tenant", s.tenant),
		zap.Int("collections", len(doc.Collections)))
	return nil
}

// ActiveTenant returns the tenant every operation is scoped to
func (s *Store) ActiveTenant() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tenant
}

// SetActiveTenant switches the active tenant and persists the choice
func (s *Store) SetActiveTenant(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return shared.NewDomainError(shared.CodeInvalidInput, "tenant id cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenant = tenantID
	s.doc.Meta.ActiveTenant = tenantID
	return s.persistLocked(ctx)
}

// GetItems returns the active tenant's records. Records without a tenant are
// stamped with the active tenant and the document is persisted.
func (s *Store) GetItems(ctx context.Context, c shared.Collection) []shared.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.visibleLocked(ctx, c))
}

// GetItemsFor is GetItems for a caller that captured tenant earlier
func (s *Store) GetItemsFor(ctx context.Context, tenant string, c shared.Collection) ([]shared.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guardLocked(tenant); err != nil {
		return nil, err
	}
	return cloneAll(s.visibleLocked(ctx, c)), nil
}

// FindItem returns the first active-tenant record matching pred
func (s *Store) FindItem(ctx context.Context, c shared.Collection, pred shared.Predicate) (shared.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.visibleLocked(ctx, c) {
		if pred(r) {
			return r.Clone(), true
		}
	}
	return shared.Record{}, false
}

// PushItem appends r stamped with the active tenant. A missing id and
// timestamps are filled in. Validation is the caller's job.
func (s *Store) PushItem(ctx context.Context, c shared.Collection, r shared.Record) (shared.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r = r.Clone()
	r.TenantID = s.tenant
	if r.ID == "" {
		r.ID = shared.NewRecordID()
	}
	now := shared.Timestamp(time.Now())
	if r.CreatedAt == "" {
		r.CreatedAt = now
	}
	if r.UpdatedAt == "" {
		r.UpdatedAt = now
	}
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}
	s.doc.Collections[c] = append(s.doc.Collections[c], r)
	return r.Clone(), s.persistLocked(ctx)
}

// UpsertItem shallow-merges r into the active tenant's record with the same
// keyField value, or appends it. keyField defaults to "id". Last writer wins.
func (s *Store) UpsertItem(ctx context.Context, c shared.Collection, r shared.Record, keyField string) (shared.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.upsertLocked(c, r, keyField)
	return stored.Clone(), s.persistLocked(ctx)
}

// UpsertItemFor is UpsertItem guarded by tenant: it fails with
// ErrTenantChanged when tenant is no longer active.
func (s *Store) UpsertItemFor(ctx context.Context, tenant string, c shared.Collection, r shared.Record, keyField string) (shared.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guardLocked(tenant); err != nil {
		return shared.Record{}, err
	}
	stored := s.upsertLocked(c, r, keyField)
	return stored.Clone(), s.persistLocked(ctx)
}

// PutItem stores r exactly as given, replacing the active tenant's record with
// the same id. Used to restore a record to an earlier snapshot.
func (s *Store) PutItem(ctx context.Context, c shared.Collection, r shared.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(c, s.stampLocked(r))
	return s.persistLocked(ctx)
}

// PutItemFor is PutItem guarded by tenant
func (s *Store) PutItemFor(ctx context.Context, tenant string, c shared.Collection, r shared.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guardLocked(tenant); err != nil {
		return err
	}
	s.setLocked(c, s.stampLocked(r))
	return s.persistLocked(ctx)
}

// ReplaceItems swaps the active tenant's records for items. Records of other
// tenants are kept untouched.
func (s *Store) ReplaceItems(ctx context.Context, c shared.Collection, items []shared.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(c, items)
	return s.persistLocked(ctx)
}

// ApplyPull replaces tenant's records of c with items pulled from the remote
// and marks c as synced, in one persist. It fails with ErrTenantChanged, and
// writes nothing, when tenant is no longer active.
func (s *Store) ApplyPull(ctx context.Context, tenant string, c shared.Collection, items []shared.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guardLocked(tenant); err != nil {
		return err
	}
	s.replaceLocked(c, items)
	s.markSyncedLocked(c)
	return s.persistLocked(ctx)
}

// RemoveItems removes the active tenant's records matching pred and returns how many went
func (s *Store) RemoveItems(ctx context.Context, c shared.Collection, pred shared.Predicate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(ctx, c, pred)
}

// RemoveItemsFor is RemoveItems guarded by tenant
func (s *Store) RemoveItemsFor(ctx context.Context, tenant string, c shared.Collection, pred shared.Predicate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guardLocked(tenant); err != nil {
		return 0, err
	}
	return s.removeLocked(ctx, c, pred)
}

// HasSynced reports whether c completed a successful pull for the active tenant since install
func (s *Store) HasSynced(c shared.Collection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.doc.Meta.SyncedOnce[s.tenant], c)
}

// MarkSynced records that c completed a successful pull for the active tenant
func (s *Store) MarkSynced(ctx context.Context, c shared.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.markSyncedLocked(c) {
		return nil
	}
	return s.persistLocked(ctx)
}

// Snapshot returns the encoded document, as it would be written to the slot
func (s *Store) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codec.Encode(s.doc)
}

// Persist writes the current document to the slot
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

// CompactionResult tells which step of the cascade made a save fit
type CompactionResult struct {
	// Tier is 0 when no compaction was needed, 1..n for the compaction tiers
	// and n+1 when images had to be stripped.
	Tier     int
	Label    string
	Stripped bool
	Images   int
}

// Compacted reports whether any compaction was applied
func (r CompactionResult) Compacted() bool {
	return r.Tier > 0
}

// SaveWithCompaction upserts r and, when the persist hits the quota, retries
// with each compaction tier and finally with images stripped. Each tier runs
// in its own failure boundary. When nothing fits the record stays in memory
// and an error matching ErrQuotaExceeded is returned.
func (s *Store) SaveWithCompaction(ctx context.Context, c shared.Collection, r shared.Record, keyField string) (shared.Record, CompactionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.upsertLocked(c, r, keyField)
	err := s.persistLocked(ctx)
	if err == nil {
		return stored.Clone(), CompactionResult{Label: "original"}, nil
	}
	if !errors.Is(err, ErrQuotaExceeded) {
		return stored.Clone(), CompactionResult{}, err
	}

	original := stored
	for i, tier := range s.compactor.Tiers() {
		compacted, n, cerr := s.compactor.Compact(original, tier)
		if cerr != nil {
			s.logger.Warn("Compaction tier failed", zap.Stringer("tier", tier), zap.Error(cerr))
			continue
		}
		if n == 0 {
			continue
		}
		s.setLocked(c, compacted)
		err = s.persistLocked(ctx)
		if err == nil {
			res := CompactionResult{Tier: i + 1, Label: tier.String(), Images: n}
			s.logger.Info("Record saved after compaction",
				zap.String("collection", c.String()),
				zap.String("id", compacted.ID),
				zap.String("tier", res.Label))
			return compacted.Clone(), res, nil
		}
		if !errors.Is(err, ErrQuotaExceeded) {
			return compacted.Clone(), CompactionResult{}, err
		}
	}

	stripped, n := StripImages(original)
	s.setLocked(c, stripped)
	res := CompactionResult{Tier: len(s.compactor.Tiers()) + 1, Label: "images removed", Stripped: true, Images: n}
	if err = s.persistLocked(ctx); err != nil {
		return stripped.Clone(), CompactionResult{}, err
	}
	s.logger.Warn("Record saved without images",
		zap.String("collection", c.String()),
		zap.String("id", stripped.ID),
		zap.Int("images", n))
	return stripped.Clone(), res, nil
}

// visibleLocked returns the active tenant's records, stamping untagged ones
func (s *Store) visibleLocked(ctx context.Context, c shared.Collection) []shared.Record {
	items := s.doc.Collections[c]
	out := make([]shared.Record, 0, len(items))
	stamped := 0
	for i := range items {
		if items[i].TenantID == "" {
			items[i].TenantID = s.tenant
			stamped++
		}
		if items[i].TenantID == s.tenant {
			out = append(out, items[i])
		}
	}
	if stamped > 0 {
		if err := s.persistLocked(ctx); err != nil {
			s.logger.Warn("Failed to persist tenant migration",
				zap.String("collection", c.String()),
				zap.Int("stamped", stamped),
				zap.Error(err))
		}
	}
	return out
}

func (s *Store) guardLocked(tenant string) error {
	if tenant != s.tenant {
		return fmt.Errorf("%w: captured %q, active %q", ErrTenantChanged, tenant, s.tenant)
	}
	return nil
}

func (s *Store) stampLocked(r shared.Record) shared.Record {
	r = r.Clone()
	r.TenantID = s.tenant
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}
	return r
}

func (s *Store) upsertLocked(c shared.Collection, r shared.Record, keyField string) shared.Record {
	if keyField == "" {
		keyField = shared.FieldID
	}
	r = s.stampLocked(r)

	key := r.Key(keyField)
	items := s.doc.Collections[c]
	if key != "" {
		for i := range items {
			if items[i].TenantID == s.tenant && items[i].Key(keyField) == key {
				items[i] = items[i].Merge(r)
				return items[i]
			}
		}
	}
	if r.ID == "" {
		r.ID = shared.NewRecordID()
	}
	s.doc.Collections[c] = append(items, r)
	return r
}

// setLocked replaces the active tenant's record with r's id
func (s *Store) setLocked(c shared.Collection, r shared.Record) {
	items := s.doc.Collections[c]
	for i := range items {
		if items[i].TenantID == s.tenant && items[i].ID == r.ID {
			items[i] = r
			return
		}
	}
	s.doc.Collections[c] = append(items, r)
}

func (s *Store) replaceLocked(c shared.Collection, items []shared.Record) {
	kept := make([]shared.Record, 0, len(s.doc.Collections[c])+len(items))
	for _, r := range s.doc.Collections[c] {
		if r.TenantID != "" && r.TenantID != s.tenant {
			kept = append(kept, r)
		}
	}
	for _, r := range items {
		r = r.Clone()
		r.TenantID = s.tenant
		kept = append(kept, r)
	}
	s.doc.Collections[c] = kept
}

func (s *Store) removeLocked(ctx context.Context, c shared.Collection, pred shared.Predicate) (int, error) {
	items := s.doc.Collections[c]
	kept := items[:0:0]
	removed := 0
	for _, r := range items {
		if (r.TenantID == "" || r.TenantID == s.tenant) && pred(r) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	if removed == 0 {
		return 0, nil
	}
	s.doc.Collections[c] = kept
	return removed, s.persistLocked(ctx)
}

// markSyncedLocked reports whether the flag was newly set
func (s *Store) markSyncedLocked(c shared.Collection) bool {
	if slices.Contains(s.doc.Meta.SyncedOnce[s.tenant], c) {
		return false
	}
	if s.doc.Meta.SyncedOnce == nil {
		s.doc.Meta.SyncedOnce = map[string][]shared.Collection{}
	}
	s.doc.Meta.SyncedOnce[s.tenant] = append(s.doc.Meta.SyncedOnce[s.tenant], c)
	return true
}

func (s *Store) persistLocked(ctx context.Context) error {
	start := time.Now()
	data, err := s.codec.Encode(s.doc)
	if err == nil {
		err = s.slot.Save(ctx, data)
	}
	if s.onPersist != nil {
		s.onPersist(len(data), time.Since(start), err)
	}
	if err != nil {
		return fmt.Errorf("failed to persist local snapshot: %w", err)
	}
	return nil
}

func cloneAll(items []shared.Record) []shared.Record {
	out := make([]shared.Record, len(items))
	for i, r := range items {
		out[i] = r.Clone()
	}
	return out
}
