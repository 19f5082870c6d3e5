// Package identity signs operators in and out of the agent.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/identity"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/auth"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/config"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/remote"
	"go.uber.org/zap"
)

// Store is the part of the local cache holding operators
type Store interface {
	ActiveTenant() string
	GetItems(ctx context.Context, c shared.Collection) []shared.Record
	FindItem(ctx context.Context, c shared.Collection, pred shared.Predicate) (shared.Record, bool)
	PutItem(ctx context.Context, c shared.Collection, r shared.Record) error
}

// Refresher keeps the remote service token fresh while anyone is signed in
type Refresher interface {
	Start(ctx context.Context)
	Stop()
	Running() bool
}

var _ Refresher = (*remote.Refresher)(nil)

// ServiceConfig contains configuration for the session service
type ServiceConfig struct {
	AdminUsername    string
	AdminPassword    string
	BcryptCost       int
	MaxLoginAttempts int           // Failed logins before the operator is locked
	LockDuration     time.Duration // How long the lock lasts
}

// ConfigFrom builds the service config from the auth section
func ConfigFrom(cfg config.AuthConfig) ServiceConfig {
	return ServiceConfig{
		AdminUsername:    cfg.AdminUsername,
		AdminPassword:    cfg.AdminPassword,
		BcryptCost:       cfg.BcryptCost,
		MaxLoginAttempts: 5,
		LockDuration:     15 * time.Minute,
	}
}

// Service handles operator sessions
type Service struct {
	store     Store
	jwt       *auth.JWTService
	revoked   auth.RevocationList
	refresher Refresher
	cfg       ServiceConfig
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]time.Time // jti -> expiry
}

// NewService creates the session service. refresher may be nil when the agent
// runs without a remote service.
func NewService(store Store, jwt *auth.JWTService, revoked auth.RevocationList, refresher Refresher, cfg ServiceConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if revoked == nil {
		revoked = auth.NewMemoryRevocationList()
	}
	return &Service{
		store:     store,
		jwt:       jwt,
		revoked:   revoked,
		refresher: refresher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]time.Time),
	}
}

// EnsureAdmin creates the configured admin in the active tenant when the
// tenant has no operators yet. It reports whether an operator was created.
func (s *Service) EnsureAdmin(ctx context.Context) (bool, error) {
	if len(s.store.GetItems(ctx, shared.CollectionUsers)) > 0 {
		return false, nil
	}
	if s.cfg.AdminPassword == "" {
		s.logger.Warn("No operators and no admin password configured, login is disabled",
			zap.String("tenant", s.store.ActiveTenant()))
		return false, nil
	}
	op, err := identity.NewOperator(s.cfg.AdminUsername, s.cfg.AdminPassword, identity.RoleAdmin, s.cfg.BcryptCost)
	if err != nil {
		return false, fmt.Errorf("invalid bootstrap admin: %w", err)
	}
	if err := s.put(ctx, op); err != nil {
		return false, err
	}
	s.logger.Info("Bootstrap admin created",
		zap.String("username", op.Username),
		zap.String("tenant", s.store.ActiveTenant()))
	return true, nil
}

// Login verifies the operator's password and issues a session token. The
// first session starts the remote token refresher.
func (s *Service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	username := identity.NormalizeUsername(input.Username)
	s.logger.Info("Login attempt", zap.String("username", username))

	op, ok := s.find(ctx, username)
	if !ok {
		s.logger.Warn("Operator not found during login", zap.String("username", username))
		return nil, invalidCredentials()
	}

	now := s.now()
	if !op.CanLogin(now) {
		if op.IsLocked(now) {
			s.logger.Warn("Login attempt for locked operator", zap.String("username", username))
			return nil, shared.NewDomainError("ACCOUNT_LOCKED", "Account is locked. Please try again later")
		}
		return nil, shared.NewDomainError("ACCOUNT_DEACTIVATED", "Account has been deactivated")
	}

	if !op.VerifyPassword(input.Password) {
		locked := op.RecordLoginFailure(now, s.cfg.MaxLoginAttempts, s.cfg.LockDuration)
		if err := s.put(ctx, op); err != nil {
			s.logger.Error("Failed to update operator after login failure", zap.Error(err))
		}
		if locked {
			s.logger.Warn("Operator locked after too many failed attempts",
				zap.String("username", username),
				zap.Int("attempts", s.cfg.MaxLoginAttempts))
			return nil, shared.NewDomainError("ACCOUNT_LOCKED", "Too many failed login attempts. Account has been locked")
		}
		s.logger.Warn("Invalid password attempt",
			zap.String("username", username),
			zap.Int("failed_attempts", op.FailedAttempts))
		return nil, invalidCredentials()
	}

	token, err := s.jwt.Generate(auth.SessionInput{
		TenantID: s.store.ActiveTenant(),
		UserID:   op.ID,
		Username: op.Username,
		Role:     op.Role,
	})
	if err != nil {
		s.logger.Error("Failed to generate session token", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to generate session token")
	}

	op.RecordLoginSuccess(now)
	if err := s.put(ctx, op); err != nil {
		s.logger.Error("Failed to update operator after login", zap.Error(err))
	}

	s.mu.Lock()
	s.pruneLocked(now)
	s.sessions[token.ID] = token.ExpiresAt
	s.mu.Unlock()
	if s.refresher != nil && !s.refresher.Running() {
		s.refresher.Start(ctx)
	}

	s.logger.Info("Operator logged in",
		zap.String("username", op.Username),
		zap.String("operator_id", op.ID))
	return &LoginResult{
		AccessToken: token.Token,
		ExpiresAt:   token.ExpiresAt,
		TokenType:   token.TokenType,
		Operator:    toOperatorInfo(op),
	}, nil
}

// Authenticate validates a session token and rejects revoked ones
func (s *Service) Authenticate(ctx context.Context, token string) (*auth.Claims, error) {
	claims, err := s.jwt.Validate(token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		// fail closed
		s.logger.Error("Session revocation list unavailable", zap.Error(err))
		return nil, auth.ErrTokenRevoked
	}
	if revoked {
		return nil, auth.ErrTokenRevoked
	}
	return claims, nil
}

// Logout revokes the session. The refresher stops with the last session.
func (s *Service) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil {
		return shared.ErrUnauthorized
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.RemainingTTL()); err != nil {
		s.logger.Error("Failed to revoke session token", zap.Error(err))
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	s.mu.Lock()
	delete(s.sessions, claims.ID)
	s.pruneLocked(s.now())
	remaining := len(s.sessions)
	s.mu.Unlock()

	if remaining == 0 && s.refresher != nil {
		s.refresher.Stop()
	}
	s.logger.Info("Operator logged out",
		zap.String("username", claims.Username),
		zap.Int("active_sessions", remaining))
	return nil
}

// ActiveSessions returns the number of unexpired sessions
func (s *Service) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(s.now())
	return len(s.sessions)
}

// CreateOperator adds an operator to the active tenant
func (s *Service) CreateOperator(ctx context.Context, input CreateOperatorInput) (*OperatorInfo, error) {
	op, err := identity.NewOperator(input.Username, input.Password, input.Role, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	if _, exists := s.find(ctx, op.Username); exists {
		return nil, shared.NewDomainError(shared.CodeAlreadyExists, fmt.Sprintf("operator %s already exists", op.Username))
	}
	op.DisplayName = input.DisplayName
	if err := s.put(ctx, op); err != nil {
		return nil, err
	}
	info := toOperatorInfo(op)
	return &info, nil
}

// ListOperators returns the operators of the active tenant
func (s *Service) ListOperators(ctx context.Context) []OperatorInfo {
	items := s.store.GetItems(ctx, shared.CollectionUsers)
	out := make([]OperatorInfo, 0, len(items))
	for _, rec := range items {
		op, err := identity.OperatorFromRecord(rec)
		if err != nil {
			s.logger.Warn("Skipping unreadable operator", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		out = append(out, toOperatorInfo(op))
	}
	return out
}

func (s *Service) find(ctx context.Context, username string) (*identity.Operator, bool) {
	rec, ok := s.store.FindItem(ctx, shared.CollectionUsers, shared.ByField("username", username))
	if !ok {
		return nil, false
	}
	op, err := identity.OperatorFromRecord(rec)
	if err != nil {
		s.logger.Warn("Unreadable operator record", zap.String("id", rec.ID), zap.Error(err))
		return nil, false
	}
	return op, true
}

func (s *Service) put(ctx context.Context, op *identity.Operator) error {
	rec, err := op.ToRecord()
	if err != nil {
		return fmt.Errorf("failed to encode operator: %w", err)
	}
	now := shared.Timestamp(s.now())
	if rec.CreatedAt == "" {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	// full replace: cleared optional fields must not survive a merge
	err = s.store.PutItem(ctx, shared.CollectionUsers, rec)
	if err != nil && !errors.Is(err, shared.ErrQuotaExceeded) {
		return fmt.Errorf("failed to store operator: %w", err)
	}
	op.TenantID = s.store.ActiveTenant()
	op.CreatedAt = rec.CreatedAt
	return nil
}

func (s *Service) pruneLocked(now time.Time) {
	for jti, exp := range s.sessions {
		if !exp.After(now) {
			delete(s.sessions, jti)
		}
	}
}

func invalidCredentials() error {
	return shared.NewDomainError("INVALID_CREDENTIALS", "Invalid username or password")
}
