// Package reconcile keeps the local store eventually consistent with the
// remote collection service: pull-on-view, optimistic push-on-write and
// compensating push-on-delete.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/localstore"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/remote"
	"go.uber.org/zap"
)

// LocalStore is the part of the local cache the reconciler works through.
// Background work writes with the tenant it captured; the store refuses those
// writes with localstore.ErrTenantChanged once another tenant is active.
type LocalStore interface {
	ActiveTenant() string
	GetItems(ctx context.Context, c shared.Collection) []shared.Record
	GetItemsFor(ctx context.Context, tenant string, c shared.Collection) ([]shared.Record, error)
	FindItem(ctx context.Context, c shared.Collection, pred shared.Predicate) (shared.Record, bool)
	UpsertItemFor(ctx context.Context, tenant string, c shared.Collection, r shared.Record, keyField string) (shared.Record, error)
	PutItemFor(ctx context.Context, tenant string, c shared.Collection, r shared.Record) error
	RemoveItemsFor(ctx context.Context, tenant string, c shared.Collection, pred shared.Predicate) (int, error)
	ApplyPull(ctx context.Context, tenant string, c shared.Collection, items []shared.Record) error
	SaveWithCompaction(ctx context.Context, c shared.Collection, r shared.Record, keyField string) (shared.Record, localstore.CompactionResult, error)
	HasSynced(c shared.Collection) bool
}

// Remote is the remote collection service
type Remote interface {
	List(ctx context.Context, tenant string, c shared.Collection, q remote.ListQuery) (*remote.ListResult, error)
	Save(ctx context.Context, tenant string, c shared.Collection, r shared.Record) (shared.Record, error)
	Delete(ctx context.Context, tenant string, c shared.Collection, id string) error
}

// Metrics observes reconciliation activity
type Metrics interface {
	ObservePull(c shared.Collection, outcome Outcome, elapsed time.Duration)
	ObservePush(c shared.Collection, op string, err error)
	ObserveStale(c shared.Collection, op string)
}

var (
	_ LocalStore = (*localstore.Store)(nil)
	_ Remote     = (*remote.Client)(nil)
)

// State is the per-collection sync state
type State string

const (
	StateIdle      State = "idle"
	StatePulling   State = "pulling"
	StateCompleted State = "completed"
)

// Outcome tells what a pull did
type Outcome string

const (
	OutcomeApplied    Outcome = "applied"
	OutcomeSkipped    Outcome = "skipped"    // identical key already in flight
	OutcomeCached     Outcome = "cached"     // key already completed
	OutcomeSuperseded Outcome = "superseded" // a newer pull or a local write came first
	OutcomeFailed     Outcome = "failed"
)

// SeedPolicy decides when local payment plans are uploaded to the remote
type SeedPolicy string

const (
	SeedFirstSync   SeedPolicy = "first-sync"
	SeedEmptyRemote SeedPolicy = "empty-remote"
	SeedNever       SeedPolicy = "never"
)

// PullKey identifies a list view: one page for one search term
type PullKey struct {
	Page   int    `json:"page"`
	Search string `json:"search"`
}

// PullResult reports a finished pull
type PullResult struct {
	Outcome    Outcome `json:"outcome"`
	Count      int     `json:"count"`
	Seeded     int     `json:"seeded,omitempty"`
	Generation uint64  `json:"generation"`

	Pagination *remote.Pagination `json:"pagination,omitempty"`
}

// Status is a point-in-time view of a reconciler
type Status struct {
	Collection   shared.Collection  `json:"collection"`
	State        State              `json:"state"`
	Retry        bool               `json:"retry"`
	Generation   uint64             `json:"generation"`
	InFlight     int                `json:"inFlight"`
	CompletedKey *PullKey           `json:"completedKey,omitempty"`
	LastSyncedAt *time.Time         `json:"lastSyncedAt,omitempty"`
	LastError    string             `json:"lastError,omitempty"`
	Superseded   int                `json:"superseded"`
	StaleEchoes  int                `json:"staleEchoes"`
	Pending      int                `json:"pending"`
	Pagination   *remote.Pagination `json:"pagination,omitempty"`
}

// SaveResult is the outcome of an optimistic save
type SaveResult struct {
	Record     shared.Record               `json:"record"`
	Compaction localstore.CompactionResult `json:"compaction"`
}

// Options tune a reconciler
type Options struct {
	NotifyPullErrors      bool
	RollbackOnPushFailure bool
	Seed                  SeedPolicy
	PageSize              int
}

// Reconciler synchronizes one collection
type Reconciler struct {
	coll     shared.Collection
	store    LocalStore
	remote   Remote
	notifier shared.Notifier
	metrics  Metrics
	logger   *zap.Logger
	opts     Options

	mu           sync.Mutex
	state        State
	retry        bool
	generation   uint64
	inflight     map[PullKey]uint64 // key -> generation of the pull in flight
	completedKey *PullKey
	lastSyncedAt time.Time
	lastError    string
	superseded   int
	staleEchoes  int
	pagination   *remote.Pagination

	// pushSeq numbers the writes of each record id; only the answer to the
	// latest write of an id may touch the local copy
	pushSeq map[string]uint64
	pending int

	wg sync.WaitGroup
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithNotifier sets where operator toasts go
func WithNotifier(n shared.Notifier) Option {
	return func(r *Reconciler) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithMetrics sets the metrics observer
func WithMetrics(m Metrics) Option {
	return func(r *Reconciler) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithOptions sets the behavior switches
func WithOptions(o Options) Option {
	return func(r *Reconciler) {
		r.opts = o
	}
}

// NewReconciler creates a reconciler for collection c
func NewReconciler(c shared.Collection, store LocalStore, rem Remote, opts ...Option) *Reconciler {
	r := &Reconciler{
		coll:     c,
		store:    store,
		remote:   rem,
		notifier: shared.NotifierFunc(func(context.Context, shared.Notification) {}),
		metrics:  nopMetrics{},
		logger:   zap.NewNop(),
		opts:     Options{Seed: SeedFirstSync},
		state:    StateIdle,
		inflight: map[PullKey]uint64{},
		pushSeq:  map[string]uint64{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.opts.Seed == "" {
		r.opts.Seed = SeedFirstSync
	}
	r.logger = r.logger.With(zap.String("collection", c.String()))
	return r
}

// Collection returns the collection this reconciler owns
func (r *Reconciler) Collection() shared.Collection {
	return r.coll
}

// Pull fetches one page from the remote and replaces the tenant's local slice
// with it. An identical key already in flight is skipped and a completed key
// is served from the local cache until it changes or Invalidate is called.
// A pull that completes after a newer pull started, or after a local write of
// the collection, is discarded, as is one whose tenant is no longer active.
// The remote call is detached from ctx cancellation and bounded by the client
// timeout.
func (r *Reconciler) Pull(ctx context.Context, key PullKey) (PullResult, error) {
	key = normalizeKey(key)

	r.mu.Lock()
	if _, busy := r.inflight[key]; busy {
		gen := r.generation
		r.mu.Unlock()
		r.metrics.ObservePull(r.coll, OutcomeSkipped, 0)
		return PullResult{Outcome: OutcomeSkipped, Generation: gen}, nil
	}
	if r.state == StateCompleted && r.completedKey != nil && *r.completedKey == key {
		gen := r.generation
		r.mu.Unlock()
		r.metrics.ObservePull(r.coll, OutcomeCached, 0)
		return PullResult{Outcome: OutcomeCached, Generation: gen}, nil
	}
	r.generation++
	gen := r.generation
	r.inflight[key] = gen
	r.state = StatePulling
	r.mu.Unlock()

	start := time.Now()
	ctx = context.WithoutCancel(ctx)
	tenant := r.store.ActiveTenant()

	res, err := r.fetch(ctx, tenant, key)
	seeded := 0
	if err == nil && r.coll == shared.CollectionPaymentPlans && key.Page == 1 && key.Search == "" {
		res, seeded, err = r.seed(ctx, tenant, key, res)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight[key] == gen {
		delete(r.inflight, key)
	}

	if gen != r.generation {
		return r.supersededLocked(key, gen, start, "newer pull or local write"), nil
	}

	if err != nil {
		r.state = StateIdle
		r.retry = true
		r.lastError = err.Error()
		r.logger.Warn("Pull failed, keeping local data", zap.Error(err), zap.Bool("transient", remote.IsTransient(err)))
		r.metrics.ObservePull(r.coll, OutcomeFailed, time.Since(start))
		if apiErr, ok := remote.AsAPIError(err); ok && r.opts.NotifyPullErrors {
			r.notify(ctx, shared.LevelError, shared.NoticePullFailed, "", tenant,
				fmt.Sprintf("Could not refresh %s: %s", r.coll, apiErr.ServerMessage()))
		}
		return PullResult{Outcome: OutcomeFailed, Generation: gen}, err
	}

	if perr := r.store.ApplyPull(ctx, tenant, r.coll, res.Items); perr != nil {
		if errors.Is(perr, localstore.ErrTenantChanged) {
			return r.supersededLocked(key, gen, start, "tenant changed"), nil
		}
		r.logger.Warn("Pulled items kept in memory only", zap.Error(perr))
	}
	r.state = StateCompleted
	r.retry = false
	r.lastError = ""
	r.lastSyncedAt = time.Now()
	k := key
	r.completedKey = &k
	r.pagination = res.Pagination

	r.logger.Debug("Pull applied", zap.Int("items", len(res.Items)), zap.Int("seeded", seeded), zap.Uint64("generation", gen))
	r.metrics.ObservePull(r.coll, OutcomeApplied, time.Since(start))
	return PullResult{Outcome: OutcomeApplied, Count: len(res.Items), Seeded: seeded, Generation: gen, Pagination: res.Pagination}, nil
}

func (r *Reconciler) supersededLocked(key PullKey, gen uint64, start time.Time, reason string) PullResult {
	r.superseded++
	if len(r.inflight) == 0 && r.state == StatePulling {
		r.state = StateIdle
	}
	r.logger.Info("Discarding superseded pull",
		zap.String("reason", reason),
		zap.Uint64("generation", gen),
		zap.Uint64("current_generation", r.generation),
		zap.Int("page", key.Page),
		zap.String("search", key.Search))
	r.metrics.ObservePull(r.coll, OutcomeSuperseded, time.Since(start))
	return PullResult{Outcome: OutcomeSuperseded, Generation: gen}
}

// supersedePullsLocked orders a local write after every pull in flight.
// Those pulls come back superseded instead of replacing the slice the write
// lands in; the next view pulls again.
func (r *Reconciler) supersedePullsLocked() {
	r.generation++
	clear(r.inflight)
}

// beginWriteLocked starts a local write of id and returns its sequence number
func (r *Reconciler) beginWriteLocked(id string) uint64 {
	r.supersedePullsLocked()
	r.pushSeq[id]++
	r.pending++
	return r.pushSeq[id]
}

// endWrite reports whether the write numbered seq is still the latest of id.
// When it is, pulls in flight are superseded by the write's local outcome.
func (r *Reconciler) endWrite(id string, seq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending--
	if r.pushSeq[id] != seq {
		r.staleEchoes++
		return false
	}
	r.supersedePullsLocked()
	return true
}

// Trigger starts a pull in the background. Completion is observable through
// Status and Wait.
func (r *Reconciler) Trigger(ctx context.Context, key PullKey) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.Pull(ctx, key); err != nil {
			r.logger.Debug("Background pull failed", zap.Error(err))
		}
	}()
}

// Invalidate forgets the completed key so the next view pulls again
func (r *Reconciler) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completedKey = nil
	if r.state == StateCompleted {
		r.state = StateIdle
	}
}

// Reset supersedes every pull in flight and forgets the completed key.
// Used when the active tenant changes.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.inflight = map[PullKey]uint64{}
	r.completedKey = nil
	r.pagination = nil
	r.retry = false
	r.lastError = ""
	r.state = StateIdle
}

// Wait blocks until every background pull and push has finished
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// Status returns the current state
func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Status{
		Collection:  r.coll,
		State:       r.state,
		Retry:       r.retry,
		Generation:  r.generation,
		InFlight:    len(r.inflight),
		LastError:   r.lastError,
		Superseded:  r.superseded,
		StaleEchoes: r.staleEchoes,
		Pending:     r.pending,
	}
	if r.completedKey != nil {
		k := *r.completedKey
		s.CompletedKey = &k
	}
	if !r.lastSyncedAt.IsZero() {
		t := r.lastSyncedAt
		s.LastSyncedAt = &t
	}
	if r.pagination != nil {
		p := *r.pagination
		s.Pagination = &p
	}
	return s
}

// Save applies r optimistically to the local store, compacting embedded
// images when the store is full, and pushes it in the background. The
// remote's canonical echo replaces the local entry on success. On failure the
// operator is told the change is local only; with RollbackOnPushFailure the
// record is restored to what it was before the save. Only the answer to the
// latest write of a record touches the local copy, so an older echo arriving
// late cannot undo a newer edit.
//
// A persist error is returned after the push was scheduled: the record is in
// memory for this session either way.
func (r *Reconciler) Save(ctx context.Context, rec shared.Record) (SaveResult, error) {
	var prev shared.Record
	existed := false
	if rec.ID != "" {
		prev, existed = r.store.FindItem(ctx, r.coll, shared.ByID(rec.ID))
	}
	if rec.ID == "" {
		rec.ID = shared.NewRecordID()
	}
	now := shared.Timestamp(time.Now())
	if !existed && rec.CreatedAt == "" {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	r.mu.Lock()
	seq := r.beginWriteLocked(rec.ID)
	r.mu.Unlock()

	stored, compaction, perr := r.store.SaveWithCompaction(ctx, r.coll, rec, shared.FieldID)
	tenant := stored.TenantID
	if tenant == "" {
		tenant = r.store.ActiveTenant()
	}
	switch {
	case perr != nil && errors.Is(perr, localstore.ErrQuotaExceeded):
		r.notify(ctx, shared.LevelError, shared.NoticeStorageFull, stored.ID, tenant,
			"Local storage is full: the change is kept for this session only")
	case perr != nil:
		r.logger.Error("Failed to persist local save", zap.String("id", stored.ID), zap.Error(perr))
	case compaction.Stripped:
		r.notify(ctx, shared.LevelWarning, shared.NoticeImagesRemoved, stored.ID, tenant,
			"Local storage is full: images were removed from the saved copy")
	case compaction.Compacted():
		r.notify(ctx, shared.LevelInfo, shared.NoticeCompacted, stored.ID, tenant,
			fmt.Sprintf("Images were compressed to fit local storage (%s)", compaction.Label))
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.push(context.WithoutCancel(ctx), tenant, stored, prev, existed, seq)
	}()

	if perr != nil {
		return SaveResult{Record: stored, Compaction: compaction}, perr
	}
	return SaveResult{Record: stored, Compaction: compaction}, nil
}

func (r *Reconciler) push(ctx context.Context, tenant string, rec, prev shared.Record, existed bool, seq uint64) {
	echo, err := r.remote.Save(ctx, tenant, r.coll, rec)
	r.metrics.ObservePush(r.coll, "save", err)

	if !r.endWrite(rec.ID, seq) {
		r.logger.Info("Discarding answer to an older write",
			zap.String("id", rec.ID), zap.Uint64("seq", seq), zap.Error(err))
		r.metrics.ObserveStale(r.coll, "save")
		return
	}

	if err == nil {
		_, uerr := r.store.UpsertItemFor(ctx, tenant, r.coll, echo, shared.FieldID)
		switch {
		case errors.Is(uerr, localstore.ErrTenantChanged):
			r.logger.Info("Tenant changed during push, leaving local state alone", zap.String("id", rec.ID))
			return
		case uerr != nil:
			r.logger.Warn("Failed to store canonical echo", zap.String("id", rec.ID), zap.Error(uerr))
		}
		r.Invalidate()
		return
	}

	r.logger.Warn("Push failed, change is local only", zap.String("id", rec.ID), zap.Error(err))
	reason := "the server could not be reached"
	if apiErr, ok := remote.AsAPIError(err); ok {
		reason = apiErr.ServerMessage()
	}
	msg := "Saved locally only: " + reason
	var rerr error
	switch {
	case r.opts.RollbackOnPushFailure && existed:
		rerr = r.store.PutItemFor(ctx, tenant, r.coll, prev)
		msg = "Change reverted: " + reason
	case r.opts.RollbackOnPushFailure:
		_, rerr = r.store.RemoveItemsFor(ctx, tenant, r.coll, shared.ByID(rec.ID))
		msg = "Change reverted: " + reason
	default:
		// a pull applied while the push was out may have dropped the record
		rerr = r.store.PutItemFor(ctx, tenant, r.coll, rec)
	}
	switch {
	case errors.Is(rerr, localstore.ErrTenantChanged):
		r.logger.Info("Tenant changed during push, leaving local state alone", zap.String("id", rec.ID), zap.Error(err))
		return
	case rerr != nil:
		r.logger.Warn("Failed to persist local outcome of failed push", zap.String("id", rec.ID), zap.Error(rerr))
	}
	r.notify(ctx, shared.LevelWarning, shared.NoticePushFailed, rec.ID, tenant, msg)
}

// Delete removes the record now and deletes it remotely in the background.
// If the remote delete fails the record is restored with its original values,
// unless a later write of the same record happened meanwhile.
func (r *Reconciler) Delete(ctx context.Context, id string) error {
	tenant := r.store.ActiveTenant()
	prev, ok := r.store.FindItem(ctx, r.coll, shared.ByID(id))
	if !ok {
		return shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("%s record %s not found", r.coll, id))
	}

	r.mu.Lock()
	seq := r.beginWriteLocked(id)
	r.mu.Unlock()

	if _, err := r.store.RemoveItemsFor(ctx, tenant, r.coll, shared.ByID(id)); err != nil {
		if errors.Is(err, localstore.ErrTenantChanged) {
			r.endWrite(id, seq)
			return shared.NewDomainError(shared.CodeInvalidState, "the active tenant changed, delete was not applied")
		}
		r.logger.Warn("Failed to persist local delete", zap.String("id", id), zap.Error(err))
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.pushDelete(context.WithoutCancel(ctx), tenant, prev, seq)
	}()
	return nil
}

func (r *Reconciler) pushDelete(ctx context.Context, tenant string, prev shared.Record, seq uint64) {
	err := r.remote.Delete(ctx, tenant, r.coll, prev.ID)
	r.metrics.ObservePush(r.coll, "delete", err)

	if !r.endWrite(prev.ID, seq) {
		r.logger.Info("Discarding answer to an older delete", zap.String("id", prev.ID), zap.Error(err))
		r.metrics.ObserveStale(r.coll, "delete")
		return
	}
	if err == nil {
		r.Invalidate()
		return
	}
	r.logger.Warn("Remote delete failed, restoring record", zap.String("id", prev.ID), zap.Error(err))
	perr := r.store.PutItemFor(ctx, tenant, r.coll, prev)
	switch {
	case errors.Is(perr, localstore.ErrTenantChanged):
		return
	case perr != nil:
		r.logger.Warn("Failed to persist restored record", zap.String("id", prev.ID), zap.Error(perr))
	}
	msg := "Could not delete the record, it was restored"
	if apiErr, ok := remote.AsAPIError(err); ok {
		msg += ": " + apiErr.ServerMessage()
	}
	r.notify(ctx, shared.LevelError, shared.NoticeDeleteFailed, prev.ID, tenant, msg)
}

func (r *Reconciler) fetch(ctx context.Context, tenant string, key PullKey) (*remote.ListResult, error) {
	return r.remote.List(ctx, tenant, r.coll, remote.ListQuery{Page: key.Page, Limit: r.opts.PageSize, Search: key.Search})
}

// seed uploads local records the remote does not have, then pulls again.
// Which pulls may seed is decided by the seed policy.
func (r *Reconciler) seed(ctx context.Context, tenant string, key PullKey, res *remote.ListResult) (*remote.ListResult, int, error) {
	local, err := r.store.GetItemsFor(ctx, tenant, r.coll)
	if err != nil || len(local) == 0 {
		return res, 0, nil
	}

	var missing []shared.Record
	switch r.opts.Seed {
	case SeedNever:
		return res, 0, nil
	case SeedEmptyRemote:
		if len(res.Items) > 0 {
			return res, 0, nil
		}
		missing = local
	default:
		if r.store.HasSynced(r.coll) {
			return res, 0, nil
		}
		remoteIDs := make(map[string]bool, len(res.Items))
		for _, it := range res.Items {
			remoteIDs[it.ID] = true
		}
		for _, it := range local {
			if !remoteIDs[it.ID] {
				missing = append(missing, it)
			}
		}
	}
	if len(missing) == 0 {
		return res, 0, nil
	}

	r.logger.Info("Seeding remote from local records", zap.Int("records", len(missing)), zap.String("policy", string(r.opts.Seed)))
	seeded := 0
	for _, rec := range missing {
		if _, err := r.remote.Save(ctx, tenant, r.coll, rec); err != nil {
			r.metrics.ObservePush(r.coll, "seed", err)
			return nil, seeded, fmt.Errorf("seeding %s failed after %d records: %w", r.coll, seeded, err)
		}
		r.metrics.ObservePush(r.coll, "seed", nil)
		seeded++
	}
	r.notify(ctx, shared.LevelInfo, shared.NoticeRemoteSeeded, "", tenant,
		fmt.Sprintf("Uploaded %d local %s to the server", seeded, r.coll))

	res, err = r.fetch(ctx, tenant, key)
	return res, seeded, err
}

func (r *Reconciler) notify(ctx context.Context, level shared.NotificationLevel, code, id, tenant, msg string) {
	r.notifier.Notify(ctx, shared.Notification{
		Level:      level,
		Code:       code,
		Message:    msg,
		Collection: r.coll,
		RecordID:   id,
		TenantID:   tenant,
		Time:       time.Now(),
	})
}

func normalizeKey(k PullKey) PullKey {
	if k.Page < 1 {
		k.Page = 1
	}
	return k
}

type nopMetrics struct{}

func (nopMetrics) ObservePull(shared.Collection, Outcome, time.Duration) {}
func (nopMetrics) ObservePush(shared.Collection, string, error) {}
func (nopMetrics) ObserveStale(shared.Collection, string) {}
