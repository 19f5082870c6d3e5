// Package records is the generic list/get/save/delete surface over every
// collection. Synced collections go through their reconciler, local-only
// collections are written to the store directly.
package records

import (
	"context"
	"fmt"
	"time"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/application/reconcile"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/crm"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/localstore"
	"go.uber.org/zap"
)

// Store is the part of the local cache the service reads and writes
type Store interface {
	ActiveTenant() string
	GetItems(ctx context.Context, c shared.Collection) []shared.Record
	FindItem(ctx context.Context, c shared.Collection, pred shared.Predicate) (shared.Record, bool)
	UpsertItem(ctx context.Context, c shared.Collection, r shared.Record, keyField string) (shared.Record, error)
	RemoveItems(ctx context.Context, c shared.Collection, pred shared.Predicate) (int, error)
}

// Syncer is what the service needs from a collection's reconciler
type Syncer interface {
	Pull(ctx context.Context, key reconcile.PullKey) (reconcile.PullResult, error)
	Trigger(ctx context.Context, key reconcile.PullKey)
	Save(ctx context.Context, r shared.Record) (reconcile.SaveResult, error)
	Delete(ctx context.Context, id string) error
	Status() reconcile.Status
}

// Syncers resolves the reconciler of a collection
type Syncers interface {
	For(c shared.Collection) (*reconcile.Reconciler, bool)
}

var _ Syncer = (*reconcile.Reconciler)(nil)

// Service serves every collection of the active tenant
type Service struct {
	store   Store
	syncers func(c shared.Collection) (Syncer, bool)
	logger  *zap.Logger
}

// NewService creates a records service
func NewService(store Store, mgr Syncers, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store: store,
		syncers: func(c shared.Collection) (Syncer, bool) {
			if mgr == nil {
				return nil, false
			}
			r, ok := mgr.For(c)
			if !ok {
				return nil, false
			}
			return r, true
		},
		logger: logger,
	}
}

// List returns the local view of collection c. For synced collections a pull
// for (page, search) is started in the background, or awaited when Wait is set;
// the remote page then replaces the local slice and the list is not paged
// again locally. Local-only collections are paged here.
func (s *Service) List(ctx context.Context, c shared.Collection, q ListQuery) (*ListResult, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}
	f := shared.Filter{Page: q.Page, PageSize: q.PageSize, Search: q.Search}.Normalize()

	syncer, synced := s.syncers(c)
	if !synced {
		page := shared.Paginate(filter(s.store.GetItems(ctx, c), f), f)
		return &ListResult{Collection: c, Items: page.Items, Page: page.Page, Total: page.Total, TotalPages: page.TotalPages}, nil
	}

	key := reconcile.PullKey{Page: f.Page, Search: f.Search}
	if q.Wait {
		if _, err := syncer.Pull(ctx, key); err != nil {
			s.logger.Debug("Pull before list failed, serving local data", zap.String("collection", c.String()), zap.Error(err))
		}
	} else {
		syncer.Trigger(ctx, key)
	}

	items := filter(s.store.GetItems(ctx, c), f)
	status := syncer.Status()
	res := &ListResult{
		Collection: c,
		Items:      items,
		Page:       f.Page,
		Total:      int64(len(items)),
		TotalPages: 1,
		Sync:       &status,
	}
	if status.Pagination != nil {
		res.Total = int64(status.Pagination.Total)
		res.TotalPages = status.Pagination.TotalPages
	}
	return res, nil
}

// Get returns one record of the active tenant
func (s *Service) Get(ctx context.Context, c shared.Collection, id string) (shared.Record, error) {
	if err := checkCollection(c); err != nil {
		return shared.Record{}, err
	}
	r, ok := s.store.FindItem(ctx, c, shared.ByID(id))
	if !ok {
		return shared.Record{}, shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("%s record %s not found", c, id))
	}
	return r, nil
}

// Save validates r against its collection's model and stores it. Validation
// failures leave every store untouched. A storage quota error is returned
// together with the result: the record is kept in memory for the session.
func (s *Service) Save(ctx context.Context, c shared.Collection, r shared.Record) (*SaveResult, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}
	if err := crm.ValidateRecord(c, r); err != nil {
		return nil, err
	}

	if syncer, ok := s.syncers(c); ok {
		res, err := syncer.Save(ctx, r)
		out := &SaveResult{Record: res.Record, Compaction: res.Compaction, Synced: true}
		return out, err
	}

	now := shared.Timestamp(time.Now())
	if r.ID == "" {
		r.ID = shared.NewRecordID()
	}
	if _, exists := s.store.FindItem(ctx, c, shared.ByID(r.ID)); !exists && r.CreatedAt == "" {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	stored, err := s.store.UpsertItem(ctx, c, r, shared.FieldID)
	return &SaveResult{Record: stored, Compaction: localstore.CompactionResult{Label: "original"}}, err
}

// Delete removes a record. Synced collections delete optimistically and
// restore the record if the remote delete fails.
func (s *Service) Delete(ctx context.Context, c shared.Collection, id string) error {
	if err := checkCollection(c); err != nil {
		return err
	}
	if syncer, ok := s.syncers(c); ok {
		return syncer.Delete(ctx, id)
	}
	n, err := s.store.RemoveItems(ctx, c, shared.ByID(id))
	if err != nil {
		return err
	}
	if n == 0 {
		return shared.NewDomainError(shared.CodeNotFound, fmt.Sprintf("%s record %s not found", c, id))
	}
	return nil
}

func filter(items []shared.Record, f shared.Filter) []shared.Record {
	if f.Search == "" {
		return items
	}
	out := make([]shared.Record, 0, len(items))
	for _, it := range items {
		if f.Matches(it) {
			out = append(out, it)
		}
	}
	return out
}

// checkCollection rejects unknown collections and the operators collection,
// which is only reachable through the identity service
func checkCollection(c shared.Collection) error {
	if !c.IsValid() {
		return shared.NewDomainError(shared.CodeInvalidInput, fmt.Sprintf("unknown collection %q", c))
	}
	if c == shared.CollectionUsers {
		return shared.NewDomainError(shared.CodeForbidden, "operators are managed through the session API")
	}
	return nil
}
