package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/localstore"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	mu      sync.Mutex
	list    func(ctx context.Context, tenant string, q remote.ListQuery) (*remote.ListResult, error)
	save    func(ctx context.Context, tenant string, r shared.Record) (shared.Record, error)
	del     func(ctx context.Context, tenant string, id string) error
	saved   []shared.Record
	deleted []string
	lists   int
}

func (f *fakeRemote) List(ctx context.Context, tenant string, _ shared.Collection, q remote.ListQuery) (*remote.ListResult, error) {
	f.mu.Lock()
	f.lists++
	fn := f.list
	f.mu.Unlock()
	if fn == nil {
		return &remote.ListResult{}, nil
	}
	return fn(ctx, tenant, q)
}

func (f *fakeRemote) Save(ctx context.Context, tenant string, _ shared.Collection, r shared.Record) (shared.Record, error) {
	f.mu.Lock()
	f.saved = append(f.saved, r.Clone())
	fn := f.save
	f.mu.Unlock()
	if fn == nil {
		return r, nil
	}
	return fn(ctx, tenant, r)
}

func (f *fakeRemote) Delete(ctx context.Context, tenant string, _ shared.Collection, id string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, id)
	fn := f.del
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, tenant, id)
}

func (f *fakeRemote) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func (f *fakeRemote) savedRecords() []shared.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]shared.Record(nil), f.saved...)
}

type recorder struct {
	mu    sync.Mutex
	items []shared.Notification
}

func (r *recorder) Notify(_ context.Context, n shared.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *recorder) codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.items))
	for i, n := range r.items {
		out[i] = n.Code
	}
	return out
}

func (r *recorder) last() shared.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[len(r.items)-1]
}

func items(ids ...string) []shared.Record {
	out := make([]shared.Record, len(ids))
	for i, id := range ids {
		out[i] = shared.Record{ID: id, Fields: map[string]any{"name": "remote " + id}}
	}
	return out
}

func ids(records []shared.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func newStore(t *testing.T) *localstore.Store {
	t.Helper()
	return localstore.New(localstore.NewMemorySlot(), localstore.WithTenant("agency-a"))
}

func TestPull_ReplacesLocalSliceAndCaches(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	_, err := store.PushItem(ctx, shared.CollectionClients, shared.Record{ID: "stale"})
	require.NoError(t, err)

	rem := &fakeRemote{list: func(_ context.Context, tenant string, q remote.ListQuery) (*remote.ListResult, error) {
		assert.Equal(t, "agency-a", tenant)
		assert.Equal(t, 1, q.Page)
		assert.Equal(t, 20, q.Limit)
		return &remote.ListResult{Items: items("c-1", "c-2"), Pagination: &remote.Pagination{Total: 42, TotalPages: 3}}, nil
	}}
	r := NewReconciler(shared.CollectionClients, store, rem, WithOptions(Options{PageSize: 20}))

	res, err := r.Pull(ctx, PullKey{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []string{"c-1", "c-2"}, ids(store.GetItems(ctx, shared.CollectionClients)))

	st := r.Status()
	assert.Equal(t, StateCompleted, st.State)
	require.NotNil(t, st.CompletedKey)
	assert.Equal(t, PullKey{Page: 1}, *st.CompletedKey)
	assert.NotNil(t, st.LastSyncedAt)
	require.NotNil(t, st.Pagination)
	assert.Equal(t, 3, st.Pagination.TotalPages)

	res, err = r.Pull(ctx, PullKey{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCached, res.Outcome)
	assert.Equal(t, 1, rem.listCalls())

	r.Invalidate()
	assert.Equal(t, StateIdle, r.Status().State)
	res, err = r.Pull(ctx, PullKey{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, 2, rem.listCalls())

	res, err = r.Pull(ctx, PullKey{Page: 1, Search: "ana"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, 3, rem.listCalls())
}

func TestPull_IdenticalKeyInFlightIsSkipped(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	rem := &fakeRemote{list: func(context.Context, string, remote.ListQuery) (*remote.ListResult, error) {
		<-release
		return &remote.ListResult{Items: items("c-1")}, nil
	}}
	r := NewReconciler(shared.CollectionClients, newStore(t), rem)

	r.Trigger(ctx, PullKey{Page: 1})
	require.Eventually(t, func() bool { return r.Status().InFlight == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, StatePulling, r.Status().State)

	res, err := r.Pull(ctx, PullKey{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, res.Outcome)

	close(release)
	r.Wait()
	assert.Equal(t, 1, rem.listCalls())
	assert.Equal(t, StateCompleted, r.Status().State)
}

func TestPull_SupersededPullIsDiscarded(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	releaseOld := make(chan struct{})
	rem := &fakeRemote{list: func(_ context.Context, _ string, q remote.ListQuery) (*remote.ListResult, error) {
		if q.Search == "old" {
			<-releaseOld
			return &remote.ListResult{Items: items("old-1", "old-2")}, nil
		}
		return &remote.ListResult{Items: items("new-1")}, nil
	}}
	r := NewReconciler(shared.CollectionClients, store, rem)

	var oldRes PullResult
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		oldRes, _ = r.Pull(ctx, PullKey{Search: "old"})
	}()
	require.Eventually(t, func() bool { return r.Status().InFlight == 1 }, time.Second, time.Millisecond)

	newRes, err := r.Pull(ctx, PullKey{Search: "new"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, newRes.Outcome)

	close(releaseOld)
	wg.Wait()
	assert.Equal(t, OutcomeSuperseded, oldRes.Outcome)
	assert.Less(t, oldRes.Generation, newRes.Generation)

	assert.Equal(t, []string{"new-1"}, ids(store.GetItems(ctx, shared.CollectionClients)))
	st := r.Status()
	assert.Equal(t, 1, st.Superseded)
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, "new", st.CompletedKey.Search)
}

func TestPull_FailureKeepsLocalData(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	_, err := store.PushItem(ctx, shared.CollectionQuotations, shared.Record{ID: "q-1"})
	require.NoError(t, err)

	notes := &recorder{}
	rem := &fakeRemote{list: func(context.Context, string, remote.ListQuery) (*remote.ListResult, error) {
		return nil, fmt.Errorf("%w: dial tcp: connection refused", remote.ErrTransient)
	}}
	r := NewReconciler(shared.CollectionQuotations, store, rem, WithNotifier(notes), WithOptions(Options{NotifyPullErrors: true}))

	res, err := r.Pull(ctx, PullKey{})
	assert.ErrorIs(t, err, remote.ErrTransient)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, []string{"q-1"}, ids(store.GetItems(ctx, shared.CollectionQuotations)))

	st := r.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.True(t, st.Retry)
	assert.NotEmpty(t, st.LastError)
	assert.Empty(t, notes.codes(), "network failures are silent")

	// next view retries
	rem.list = func(context.Context, string, remote.ListQuery) (*remote.ListResult, error) {
		return &remote.ListResult{Items: items("q-2")}, nil
	}
	res, err = r.Pull(ctx, PullKey{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.False(t, r.Status().Retry)
}

func TestPull_ServerErrorNotification(t *testing.T) {
	for _, notify := range []bool{false, true} {
		t.Run(fmt.Sprintf("notify=%v", notify), func(t *testing.T) {
			notes := &recorder{}
			rem := &fakeRemote{list: func(context.Context, string, remote.ListQuery) (*remote.ListResult, error) {
				return nil, &remote.APIError{Op: "list clients", StatusCode: http.StatusInternalServerError, Message: "db down"}
			}}
			r := NewReconciler(shared.CollectionClients, newStore(t), rem, WithNotifier(notes), WithOptions(Options{NotifyPullErrors: notify}))

			_, err := r.Pull(context.Background(), PullKey{})
			require.Error(t, err)
			if notify {
				require.Equal(t, []string{shared.NoticePullFailed}, notes.codes())
				assert.Contains(t, notes.last().Message, "db down")
			} else {
				assert.Empty(t, notes.codes())
			}
		})
	}
}

func TestPull_DetachedFromCallerCancellation(t *testing.T) {
	store := newStore(t)
	rem := &fakeRemote{list: func(ctx context.Context, _ string, _ remote.ListQuery) (*remote.ListResult, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &remote.ListResult{Items: items("c-1")}, nil
	}}
	r := NewReconciler(shared.CollectionClients, store, rem)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := r.Pull(ctx, PullKey{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Len(t, store.GetItems(context.Background(), shared.CollectionClients), 1)
}

func TestPull_TenantSwitchSupersedesPull(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	release := make(chan struct{})
	rem := &fakeRemote{list: func(_ context.Context, tenant string, _ remote.ListQuery) (*remote.ListResult, error) {
		if tenant == "agency-a" {
			<-release
		}
		return &remote.ListResult{Items: items(tenant + "-1")}, nil
	}}
	m := NewManager(store, rem, nil)
	r := m.MustFor(shared.CollectionClients)

	var switched []string
	m.OnTenantSwitch(func(id string) { switched = append(switched, id) })

	r.Trigger(ctx, PullKey{})
	require.Eventually(t, func() bool { return r.Status().InFlight == 1 }, time.Second, time.Millisecond)

	require.NoError(t, m.SwitchTenant(ctx, "agency-b"))
	assert.Equal(t, []string{"agency-b"}, switched)
	assert.Zero(t, r.Status().InFlight)

	res, err := r.Pull(ctx, PullKey{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)

	close(release)
	m.Wait()

	assert.Equal(t, []string{"agency-b-1"}, ids(store.GetItems(ctx, shared.CollectionClients)))
	assert.Equal(t, 1, r.Status().Superseded)

	require.NoError(t, store.SetActiveTenant(ctx, "agency-a"))
	assert.Empty(t, store.GetItems(ctx, shared.CollectionClients))
}

// switchingStore runs beforeWrite right before the guarded writes reach the
// store, the way a tenant switch can land between a check and a write
type switchingStore struct {
	*localstore.Store
	beforeWrite func()
}

func (s *switchingStore) ApplyPull(ctx context.Context, tenant string, c shared.Collection, items []shared.Record) error {
	s.beforeWrite()
	return s.Store.ApplyPull(ctx, tenant, c, items)
}

func (s *switchingStore) UpsertItemFor(ctx context.Context, tenant string, c shared.Collection, r shared.Record, keyField string) (shared.Record, error) {
	s.beforeWrite()
	return s.Store.UpsertItemFor(ctx, tenant, c, r, keyField)
}

func TestPull_TenantSwitchBeforeApplyKeepsTenantsApart(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	wrapped := &switchingStore{Store: store, beforeWrite: func() {
		assert.NoError(t, store.SetActiveTenant(ctx, "agency-b"))
	}}
	rem := &fakeRemote{list: func(_ context.Context, tenant string, _ remote.ListQuery) (*remote.ListResult, error) {
		assert.Equal(t, "agency-a", tenant)
		return &remote.ListResult{Items: items("a-secret")}, nil
	}}
	r := NewReconciler(shared.CollectionClients, wrapped, rem)

	res, err := r.Pull(ctx, PullKey{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuperseded, res.Outcome)
	assert.Equal(t, 1, r.Status().Superseded)

	assert.Equal(t, "agency-b", store.ActiveTenant())
	assert.Empty(t, store.GetItems(ctx, shared.CollectionClients))
	assert.False(t, store.HasSynced(shared.CollectionClients))

	require.NoError(t, store.SetActiveTenant(ctx, "agency-a"))
	assert.Empty(t, store.GetItems(ctx, shared.CollectionClients))
	assert.False(t, store.HasSynced(shared.CollectionClients))
}

func TestSave_EchoAfterTenantSwitchIsDropped(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	switched := false
	wrapped := &switchingStore{Store: store, beforeWrite: func() {
		if !switched {
			switched = true
			assert.NoError(t, store.SetActiveTenant(ctx, "agency-b"))
		}
	}}
	rem := &fakeRemote{save: func(_ context.Context, tenant string, rec shared.Record) (shared.Record, error) {
		assert.Equal(t, "agency-a", tenant)
		echo := rec.Clone()
		echo.Fields["serverCode"] = "CLI-0001"
		return echo, nil
	}}
	r := NewReconciler(shared.CollectionClients, wrapped, rem)

	res, err := r.Save(ctx, shared.Record{Fields: map[string]any{"name": "Ana"}})
	require.NoError(t, err)
	r.Wait()

	assert.Empty(t, store.GetItems(ctx, shared.CollectionClients))

	require.NoError(t, store.SetActiveTenant(ctx, "agency-a"))
	local, ok := store.FindItem(ctx, shared.CollectionClients, shared.ByID(res.Record.ID))
	require.True(t, ok)
	assert.Empty(t, local.GetString("serverCode"))
}

func TestPull_LocalWriteSupersedesPullInFlight(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	release := make(chan struct{})
	notes := &recorder{}
	rem := &fakeRemote{
		list: func(context.Context, string, remote.ListQuery) (*remote.ListResult, error) {
			<-release
			return &remote.ListResult{Items: items("c-1")}, nil
		},
		save: func(context.Context, string, shared.Record) (shared.Record, error) {
			return shared.Record{}, &remote.APIError{Op: "save clients", StatusCode: http.StatusInternalServerError, Message: "db down"}
		},
	}
	r := NewReconciler(shared.CollectionClients, store, rem, WithNotifier(notes))

	var pullRes PullResult
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pullRes, _ = r.Pull(ctx, PullKey{})
	}()
	require.Eventually(t, func() bool { return r.Status().InFlight == 1 }, time.Second, time.Millisecond)

	saved, err := r.Save(ctx, shared.Record{Fields: map[string]any{"name": "Ana"}})
	require.NoError(t, err)

	close(release)
	wg.Wait()
	r.Wait()

	assert.Equal(t, OutcomeSuperseded, pullRes.Outcome)
	assert.Equal(t, []string{saved.Record.ID}, ids(store.GetItems(ctx, shared.CollectionClients)))
	require.Equal(t, []string{shared.NoticePushFailed}, notes.codes())
	assert.Equal(t, "Saved locally only: db down", notes.last().Message)

	st := r.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Zero(t, st.InFlight)
	assert.Zero(t, st.Pending)
}

func TestSave_FailedPushSurvivesPullAppliedMeanwhile(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	release := make(chan struct{})
	rem := &fakeRemote{
		list: func(context.Context, string, remote.ListQuery) (*remote.ListResult, error) {
			return &remote.ListResult{Items: items("c-1")}, nil
		},
		save: func(context.Context, string, shared.Record) (shared.Record, error) {
			<-release
			return shared.Record{}, remote.ErrTransient
		},
	}
	r := NewReconciler(shared.CollectionClients, store, rem)

	saved, err := r.Save(ctx, shared.Record{Fields: map[string]any{"name": "Ana"}})
	require.NoError(t, err)

	// started after the write, so it applies and drops the unpushed record
	res, err := r.Pull(ctx, PullKey{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, []string{"c-1"}, ids(store.GetItems(ctx, shared.CollectionClients)))

	close(release)
	r.Wait()

	local, ok := store.FindItem(ctx, shared.CollectionClients, shared.ByID(saved.Record.ID))
	require.True(t, ok, "a failed push keeps the change locally")
	assert.Equal(t, "Ana", local.GetString("name"))
	assert.Len(t, store.GetItems(ctx, shared.CollectionClients), 2)
}

func TestSave_OlderEchoDoesNotOverwriteNewerEdit(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	releaseFirst := make(chan struct{})
	rem := &fakeRemote{save: func(_ context.Context, _ string, rec shared.Record) (shared.Record, error) {
		if rec.GetString("name") == "v1" {
			<-releaseFirst
		}
		return rec.Clone(), nil
	}}
	r := NewReconciler(shared.CollectionClients, store, rem)

	first, err := r.Save(ctx, shared.Record{Fields: map[string]any{"name": "v1"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rem.savedRecords()) == 1 }, time.Second, time.Millisecond)

	_, err = r.Save(ctx, shared.Record{ID: first.Record.ID, Fields: map[string]any{"name": "v2"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return r.Status().Pending == 1 }, time.Second, time.Millisecond)

	close(releaseFirst)
	r.Wait()

	local, ok := store.FindItem(ctx, shared.CollectionClients, shared.ByID(first.Record.ID))
	require.True(t, ok)
	assert.Equal(t, "v2", local.GetString("name"))

	st := r.Status()
	assert.Equal(t, 1, st.StaleEchoes)
	assert.Zero(t, st.Pending)
}

func TestDelete_FailureDoesNotUndoLaterSave(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	_, err := store.PushItem(ctx, shared.CollectionClients, shared.Record{ID: "c-1", Fields: map[string]any{"name": "Ana"}})
	require.NoError(t, err)

	release := make(chan struct{})
	notes := &recorder{}
	rem := &fakeRemote{del: func(context.Context, string, string) error {
		<-release
		return remote.ErrTransient
	}}
	r := NewReconciler(shared.CollectionClients, store, rem, WithNotifier(notes))

	require.NoError(t, r.Delete(ctx, "c-1"))
	_, err = r.Save(ctx, shared.Record{ID: "c-1", Fields: map[string]any{"name": "Ana Ruiz"}})
	require.NoError(t, err)

	close(release)
	r.Wait()

	local, ok := store.FindItem(ctx, shared.CollectionClients, shared.ByID("c-1"))
	require.True(t, ok)
	assert.Equal(t, "Ana Ruiz", local.GetString("name"))
	assert.NotContains(t, notes.codes(), shared.NoticeDeleteFailed)
	assert.Equal(t, 1, r.Status().StaleEchoes)
}

func TestSave_OptimisticThenCanonicalEcho(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	release := make(chan struct{})
	rem := &fakeRemote{save: func(_ context.Context, _ string, r shared.Record) (shared.Record, error) {
		<-release
		echo := r.Clone()
		echo.Fields["serverCode"] = "CLI-0001"
		return echo, nil
	}}
	notes := &recorder{}
	rec := NewReconciler(shared.CollectionClients, store, rem, WithNotifier(notes))

	res, err := rec.Save(ctx, shared.Record{Fields: map[string]any{"name": "Ana"}})
	require.NoError(t, err)
	require.NotEmpty(t, res.Record.ID)
	assert.False(t, res.Compaction.Compacted())

	// visible before the remote answered
	local, ok := store.FindItem(ctx, shared.CollectionClients, shared.ByID(res.Record.ID))
	require.True(t, ok)
	assert.Equal(t, "Ana", local.GetString("name"))
	assert.Empty(t, local.GetString("serverCode"))

	close(release)
	rec.Wait()

	local, ok = store.FindItem(ctx, shared.CollectionClients, shared.ByID(res.Record.ID))
	require.True(t, ok)
	assert.Equal(t, "CLI-0001", local.GetString("serverCode"))
	assert.Empty(t, notes.codes())
}

func TestSave_PushFailureKeepsLocalChange(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	notes := &recorder{}
	rem := &fakeRemote{save: func(context.Context, string, shared.Record) (shared.Record, error) {
		return shared.Record{}, &remote.APIError{Op: "save clients", StatusCode: http.StatusConflict, Message: "duplicate email"}
	}}
	r := NewReconciler(shared.CollectionClients, store, rem, WithNotifier(notes))

	res, err := r.Save(ctx, shared.Record{Fields: map[string]any{"name": "Ana"}})
	require.NoError(t, err)
	r.Wait()

	_, ok := store.FindItem(ctx, shared.CollectionClients, shared.ByID(res.Record.ID))
	assert.True(t, ok)
	require.Equal(t, []string{shared.NoticePushFailed}, notes.codes())
	n := notes.last()
	assert.Equal(t, shared.LevelWarning, n.Level)
	assert.Equal(t, "Saved locally only: duplicate email", n.Message)
	assert.Equal(t, res.Record.ID, n.RecordID)
	assert.Equal(t, "agency-a", n.TenantID)
}

func TestSave_RollbackOnPushFailure(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	original, err := store.PushItem(ctx, shared.CollectionClients, shared.Record{ID: "c-1", Fields: map[string]any{"name": "Ana", "phone": "555"}})
	require.NoError(t, err)

	notes := &recorder{}
	rem := &fakeRemote{save: func(context.Context, string, shared.Record) (shared.Record, error) {
		return shared.Record{}, remote.ErrTransient
	}}
	r := NewReconciler(shared.CollectionClients, store, rem, WithNotifier(notes), WithOptions(Options{RollbackOnPushFailure: true}))

	_, err = r.Save(ctx, shared.Record{ID: "c-1", Fields: map[string]any{"name": "Ana Ruiz"}})
	require.NoError(t, err)
	created, err := r.Save(ctx, shared.Record{Fields: map[string]any{"name": "Nuevo"}})
	require.NoError(t, err)
	r.Wait()

	restored, ok := store.FindItem(ctx, shared.CollectionClients, shared.ByID("c-1"))
	require.True(t, ok)
	assert.True(t, original.Equal(restored))

	_, ok = store.FindItem(ctx, shared.CollectionClients, shared.ByID(created.Record.ID))
	assert.False(t, ok, "a failed create is removed")

	assert.Equal(t, []string{shared.NoticePushFailed, shared.NoticePushFailed}, notes.codes())
	assert.Equal(t, "Change reverted: the server could not be reached", notes.last().Message)
}

func TestSave_StorageFullStillPushes(t *testing.T) {
	ctx := context.Background()
	store := localstore.New(localstore.NewLimitedSlot(localstore.NewMemorySlot(), 8))
	notes := &recorder{}
	rem := &fakeRemote{}
	r := NewReconciler(shared.CollectionItineraries, store, rem, WithNotifier(notes))

	res, err := r.Save(ctx, shared.Record{Fields: map[string]any{"title": "Cusco"}})
	assert.ErrorIs(t, err, localstore.ErrQuotaExceeded)
	r.Wait()

	assert.Equal(t, shared.NoticeStorageFull, notes.codes()[0])
	require.Len(t, rem.savedRecords(), 1)
	assert.Equal(t, res.Record.ID, rem.savedRecords()[0].ID)
}

func TestDelete_RollbackRestoresOriginalValues(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	original, err := store.PushItem(ctx, shared.CollectionPaymentPlans, shared.Record{
		ID:     "p-1",
		Fields: map[string]any{"total": 3797.0, "frequency": "monthly", "installments": []any{map[string]any{"number": 1.0}}},
	})
	require.NoError(t, err)

	release := make(chan struct{})
	notes := &recorder{}
	rem := &fakeRemote{del: func(context.Context, string, string) error {
		<-release
		return &remote.APIError{Op: "delete payment-plans", StatusCode: http.StatusInternalServerError, Message: "locked"}
	}}
	r := NewReconciler(shared.CollectionPaymentPlans, store, rem, WithNotifier(notes))

	require.NoError(t, r.Delete(ctx, "p-1"))
	_, ok := store.FindItem(ctx, shared.CollectionPaymentPlans, shared.ByID("p-1"))
	assert.False(t, ok, "removed optimistically")

	close(release)
	r.Wait()

	restored, ok := store.FindItem(ctx, shared.CollectionPaymentPlans, shared.ByID("p-1"))
	require.True(t, ok)
	assert.True(t, original.Equal(restored))
	require.Equal(t, []string{shared.NoticeDeleteFailed}, notes.codes())
	assert.Equal(t, shared.LevelError, notes.last().Level)
	assert.Contains(t, notes.last().Message, "locked")
}

func TestDelete_Success(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	_, err := store.PushItem(ctx, shared.CollectionClients, shared.Record{ID: "c-1"})
	require.NoError(t, err)
	rem := &fakeRemote{}
	r := NewReconciler(shared.CollectionClients, store, rem)

	require.NoError(t, r.Delete(ctx, "c-1"))
	r.Wait()
	assert.Empty(t, store.GetItems(ctx, shared.CollectionClients))
	assert.Equal(t, []string{"c-1"}, rem.deleted)

	err = r.Delete(ctx, "c-1")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPull_SeedPolicies(t *testing.T) {
	type step struct {
		remoteItems []string
		wantSeeded  int
	}
	tests := []struct {
		policy SeedPolicy
		steps  []step
	}{
		// only the first successful pull seeds, and only what the remote lacks
		{SeedFirstSync, []step{{remoteItems: []string{"p-1"}, wantSeeded: 1}, {remoteItems: nil, wantSeeded: 0}}},
		// seeds whenever the remote looks empty
		{SeedEmptyRemote, []step{{remoteItems: []string{"p-1"}, wantSeeded: 0}, {remoteItems: nil, wantSeeded: 2}}},
		{SeedNever, []step{{remoteItems: nil, wantSeeded: 0}}},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)

			var mu sync.Mutex
			remoteSet := map[string]bool{}
			rem := &fakeRemote{}
			rem.save = func(_ context.Context, _ string, r shared.Record) (shared.Record, error) {
				mu.Lock()
				defer mu.Unlock()
				remoteSet[r.ID] = true
				return r, nil
			}
			rem.list = func(context.Context, string, remote.ListQuery) (*remote.ListResult, error) {
				mu.Lock()
				defer mu.Unlock()
				var out []shared.Record
				for _, id := range []string{"p-1", "p-2"} {
					if remoteSet[id] {
						out = append(out, shared.Record{ID: id, Fields: map[string]any{}})
					}
				}
				return &remote.ListResult{Items: out}, nil
			}
			r := NewReconciler(shared.CollectionPaymentPlans, store, rem, WithOptions(Options{Seed: tt.policy}))

			for i, st := range tt.steps {
				require.NoError(t, store.ReplaceItems(ctx, shared.CollectionPaymentPlans, items("p-1", "p-2")))
				mu.Lock()
				remoteSet = map[string]bool{}
				for _, id := range st.remoteItems {
					remoteSet[id] = true
				}
				mu.Unlock()

				r.Invalidate()
				res, err := r.Pull(ctx, PullKey{})
				require.NoError(t, err, "step %d", i)
				assert.Equal(t, st.wantSeeded, res.Seeded, "step %d", i)
				assert.Equal(t, len(st.remoteItems)+st.wantSeeded, res.Count, "step %d", i)
			}
			assert.True(t, store.HasSynced(shared.CollectionPaymentPlans))
		})
	}
}

func TestPull_SeedFailureKeepsLocal(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	require.NoError(t, store.ReplaceItems(ctx, shared.CollectionPaymentPlans, items("p-1")))
	rem := &fakeRemote{save: func(context.Context, string, shared.Record) (shared.Record, error) {
		return shared.Record{}, errors.New("boom")
	}}
	r := NewReconciler(shared.CollectionPaymentPlans, store, rem)

	res, err := r.Pull(ctx, PullKey{})
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, []string{"p-1"}, ids(store.GetItems(ctx, shared.CollectionPaymentPlans)))
	assert.False(t, store.HasSynced(shared.CollectionPaymentPlans))
}

func TestManager(t *testing.T) {
	store := newStore(t)
	m := NewManager(store, &fakeRemote{}, nil)

	for _, c := range shared.SyncedCollections() {
		r, ok := m.For(c)
		require.True(t, ok)
		assert.Equal(t, c, r.Collection())
	}
	_, ok := m.For(shared.CollectionTrips)
	assert.False(t, ok)
	assert.Panics(t, func() { m.MustFor(shared.CollectionUsers) })

	_, err := m.MustFor(shared.CollectionClients).Pull(context.Background(), PullKey{})
	require.NoError(t, err)
	statuses := m.Statuses()
	require.Len(t, statuses, len(shared.SyncedCollections()))
	assert.Equal(t, StateCompleted, statuses[0].State)

	m.InvalidateAll()
	assert.Equal(t, StateIdle, m.Statuses()[0].State)

	res, err := m.Pull(context.Background(), shared.CollectionClients, PullKey{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	_, err = m.Pull(context.Background(), shared.CollectionTrips, PullKey{})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	require.NoError(t, m.SwitchTenant(context.Background(), "agency-a"), "switching to the active tenant is a no-op")
	assert.Error(t, m.SwitchTenant(context.Background(), ""))
}
