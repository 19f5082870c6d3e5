package identity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/auth"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/config"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/localstore"
)

type fakeRefresher struct {
	mu      sync.Mutex
	running bool
	starts  int
	stops   int
}

func (f *fakeRefresher) Start(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	f.starts++
}

func (f *fakeRefresher) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.stops++
}

func (f *fakeRefresher) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func newTestService(t *testing.T) (*Service, *localstore.Store, *fakeRefresher) {
	t.Helper()
	store := localstore.New(localstore.NewMemorySlot(), localstore.WithTenant("agency-a"))
	jwtSvc := auth.NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-at-least-32-chars",
		AccessTokenExpiration: time.Hour,
		Issuer:                "agency-agent",
	})
	ref := &fakeRefresher{}
	svc := NewService(store, jwtSvc, auth.NewMemoryRevocationList(), ref, ServiceConfig{
		AdminUsername:    "admin",
		AdminPassword:    "cambiar123",
		BcryptCost:       bcrypt.MinCost,
		MaxLoginAttempts: 3,
		LockDuration:     15 * time.Minute,
	}, nil)
	return svc, store, ref
}

func TestEnsureAdmin(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.EnsureAdmin(ctx)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.EnsureAdmin(ctx)
	require.NoError(t, err)
	assert.False(t, created)

	ops := svc.ListOperators(ctx)
	require.Len(t, ops, 1)
	assert.Equal(t, "admin", ops[0].Username)
	assert.Equal(t, "admin", ops[0].Role)
	assert.Equal(t, "agency-a", ops[0].TenantID)

	// another tenant starts without operators
	require.NoError(t, store.SetActiveTenant(ctx, "agency-b"))
	created, err = svc.EnsureAdmin(ctx)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestEnsureAdmin_NoPasswordSkips(t *testing.T) {
	svc, store, _ := newTestService(t)
	svc.cfg.AdminPassword = ""

	created, err := svc.EnsureAdmin(context.Background())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Empty(t, store.GetItems(context.Background(), shared.CollectionUsers))
}

func TestLoginLogout(t *testing.T) {
	svc, _, ref := newTestService(t)
	ctx := context.Background()
	_, err := svc.EnsureAdmin(ctx)
	require.NoError(t, err)

	first, err := svc.Login(ctx, LoginInput{Username: "Admin", Password: "cambiar123"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", first.TokenType)
	assert.NotNil(t, first.Operator.LastLoginAt)
	assert.True(t, ref.Running())

	second, err := svc.Login(ctx, LoginInput{Username: "admin", Password: "cambiar123"})
	require.NoError(t, err)
	assert.Equal(t, 1, ref.starts, "refresher starts once")
	assert.Equal(t, 2, svc.ActiveSessions())

	claims, err := svc.Authenticate(ctx, first.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "agency-a", claims.TenantID)
	assert.Equal(t, "admin", claims.Role)

	require.NoError(t, svc.Logout(ctx, claims))
	_, err = svc.Authenticate(ctx, first.AccessToken)
	assert.ErrorIs(t, err, auth.ErrTokenRevoked)
	assert.True(t, ref.Running(), "another session is still open")

	claims, err = svc.Authenticate(ctx, second.AccessToken)
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, claims))
	assert.False(t, ref.Running())
	assert.Zero(t, svc.ActiveSessions())

	assert.ErrorIs(t, svc.Logout(ctx, nil), shared.ErrUnauthorized)
}

func TestLogin_LocksAfterFailures(t *testing.T) {
	svc, _, ref := newTestService(t)
	ctx := context.Background()
	_, err := svc.EnsureAdmin(ctx)
	require.NoError(t, err)

	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_, err = svc.Login(ctx, LoginInput{Username: "admin", Password: "wrong-pass1"})
		assert.ErrorIs(t, err, shared.NewDomainError("INVALID_CREDENTIALS", ""))
	}
	_, err = svc.Login(ctx, LoginInput{Username: "admin", Password: "wrong-pass1"})
	assert.ErrorIs(t, err, shared.NewDomainError("ACCOUNT_LOCKED", ""))

	// right password while locked
	_, err = svc.Login(ctx, LoginInput{Username: "admin", Password: "cambiar123"})
	assert.ErrorIs(t, err, shared.NewDomainError("ACCOUNT_LOCKED", ""))
	assert.False(t, ref.Running())

	now = now.Add(16 * time.Minute)
	res, err := svc.Login(ctx, LoginInput{Username: "admin", Password: "cambiar123"})
	require.NoError(t, err)
	assert.Equal(t, "active", res.Operator.Status)
}

func TestLogin_UnknownOperator(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Login(context.Background(), LoginInput{Username: "ghost", Password: "whatever1"})
	assert.ErrorIs(t, err, shared.NewDomainError("INVALID_CREDENTIALS", ""))
}

func TestCreateOperator(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	info, err := svc.CreateOperator(ctx, CreateOperatorInput{Username: "luis", Password: "ventas2026", DisplayName: "Luis"})
	require.NoError(t, err)
	assert.Equal(t, "agent", info.Role)
	assert.Equal(t, "Luis", info.DisplayName)
	assert.Equal(t, "agency-a", info.TenantID)

	_, err = svc.CreateOperator(ctx, CreateOperatorInput{Username: "LUIS", Password: "ventas2026"})
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)

	rec, ok := store.FindItem(ctx, shared.CollectionUsers, shared.ByField("username", "luis"))
	require.True(t, ok)
	assert.NotContains(t, rec.GetString("passwordHash"), "ventas2026")

	_, err = svc.Login(ctx, LoginInput{Username: "luis", Password: "ventas2026"})
	require.NoError(t, err)
}
