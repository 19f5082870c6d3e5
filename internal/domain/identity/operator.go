// Package identity holds the local operators who sign in to the agent.
// Operators are stored as records of the users collection.
package identity

import (
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
)

// OperatorStatus represents the status of an operator
type OperatorStatus string

const (
	OperatorStatusActive      OperatorStatus = "active"
	OperatorStatusLocked      OperatorStatus = "locked"      // Too many failed logins
	OperatorStatusDeactivated OperatorStatus = "deactivated" // Can no longer sign in
)

// Roles
const (
	RoleAdmin = "admin"
	RoleAgent = "agent"
)

// DefaultBcryptCost is used when the configured cost is out of range
const DefaultBcryptCost = 12

var usernamePattern = regexp.MustCompile(`^[a-z0-9_\-.]+$`)

// Operator is a person allowed to use the agent
type Operator struct {
	ID             string         `json:"id,omitempty"`
	TenantID       string         `json:"tenantId,omitempty"`
	Username       string         `json:"username"`
	DisplayName    string         `json:"displayName,omitempty"`
	PasswordHash   string         `json:"passwordHash"`
	Role           string         `json:"role"`
	Status         OperatorStatus `json:"status"`
	FailedAttempts int            `json:"failedAttempts,omitempty"`
	LockedUntil    *time.Time     `json:"lockedUntil,omitempty"`
	LastLoginAt    *time.Time     `json:"lastLoginAt,omitempty"`
	CreatedAt      string         `json:"createdAt,omitempty"`
	UpdatedAt      string         `json:"updatedAt,omitempty"`
}

// NewOperator creates an active operator with a bcrypt-hashed password
func NewOperator(username, password, role string, cost int) (*Operator, error) {
	username = NormalizeUsername(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if role == "" {
		role = RoleAgent
	}
	if role != RoleAdmin && role != RoleAgent {
		return nil, shared.NewValidationError("role must be admin or agent",
			shared.FieldViolation{Field: "role", Rule: "oneof", Param: "admin agent"})
	}

	hash, err := hashPassword(password, cost)
	if err != nil {
		return nil, shared.NewDomainError("PASSWORD_HASH_ERROR", "Failed to hash password")
	}
	return &Operator{
		ID:           shared.NewRecordID(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Status:       OperatorStatusActive,
	}, nil
}

// NormalizeUsername lowercases and trims a username
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// VerifyPassword reports whether password matches the stored hash
func (o *Operator) VerifyPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(o.PasswordHash), []byte(password)) == nil
}

// SetPassword replaces the password
func (o *Operator) SetPassword(password string, cost int) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	hash, err := hashPassword(password, cost)
	if err != nil {
		return shared.NewDomainError("PASSWORD_HASH_ERROR", "Failed to hash password")
	}
	o.PasswordHash = hash
	return nil
}

// RecordLoginSuccess clears failed attempts and an expired lock
func (o *Operator) RecordLoginSuccess(now time.Time) {
	o.LastLoginAt = &now
	o.FailedAttempts = 0
	o.LockedUntil = nil
	if o.Status == OperatorStatusLocked {
		o.Status = OperatorStatusActive
	}
}

// RecordLoginFailure counts a failed attempt and returns true when the
// operator got locked by it
func (o *Operator) RecordLoginFailure(now time.Time, maxAttempts int, lockDuration time.Duration) bool {
	o.FailedAttempts++
	if maxAttempts <= 0 || o.FailedAttempts < maxAttempts {
		return false
	}
	o.Status = OperatorStatusLocked
	until := now.Add(lockDuration)
	o.LockedUntil = &until
	return true
}

// IsLocked reports whether a lock is in force at now
func (o *Operator) IsLocked(now time.Time) bool {
	if o.Status != OperatorStatusLocked {
		return false
	}
	return o.LockedUntil == nil || now.Before(*o.LockedUntil)
}

// CanLogin reports whether the operator may sign in at now
func (o *Operator) CanLogin(now time.Time) bool {
	return o.Status != OperatorStatusDeactivated && !o.IsLocked(now)
}

// DisplayNameOrUsername returns display name if set, otherwise username
func (o *Operator) DisplayNameOrUsername() string {
	if o.DisplayName != "" {
		return o.DisplayName
	}
	return o.Username
}

// ToRecord converts the operator to its stored record form
func (o *Operator) ToRecord() (shared.Record, error) {
	return shared.RecordFrom(o)
}

// OperatorFromRecord decodes a stored operator
func OperatorFromRecord(r shared.Record) (*Operator, error) {
	var o Operator
	if err := shared.DecodeRecord(r, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func validateUsername(username string) error {
	if len(username) < 3 {
		return shared.NewValidationError("Username must be at least 3 characters",
			shared.FieldViolation{Field: "username", Rule: "min", Param: "3"})
	}
	if len(username) > 100 {
		return shared.NewValidationError("Username cannot exceed 100 characters",
			shared.FieldViolation{Field: "username", Rule: "max", Param: "100"})
	}
	if !usernamePattern.MatchString(username) {
		return shared.NewValidationError("Username can only contain letters, numbers, underscores, hyphens, and dots",
			shared.FieldViolation{Field: "username", Rule: "pattern"})
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return shared.NewValidationError("Password must be at least 8 characters",
			shared.FieldViolation{Field: "password", Rule: "min", Param: "8"})
	}
	if len(password) > 72 {
		// bcrypt ignores anything past 72 bytes
		return shared.NewValidationError("Password cannot exceed 72 characters",
			shared.FieldViolation{Field: "password", Rule: "max", Param: "72"})
	}
	hasLetter := strings.IndexFunc(password, func(r rune) bool { return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' }) >= 0
	hasNumber := strings.IndexFunc(password, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0
	if !hasLetter || !hasNumber {
		return shared.NewValidationError("Password must contain at least one letter and one number",
			shared.FieldViolation{Field: "password", Rule: "complexity"})
	}
	return nil
}

func hashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
