package identity

import (
	"time"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/identity"
)

// LoginInput contains the input for operator login
type LoginInput struct {
	Username string
	Password string
}

// LoginResult contains the session issued on a successful login
type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	TokenType   string
	Operator    OperatorInfo
}

// OperatorInfo is the public view of an operator
type OperatorInfo struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	Username    string     `json:"username"`
	DisplayName string     `json:"displayName"`
	Role        string     `json:"role"`
	Status      string     `json:"status"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// CreateOperatorInput contains the input for adding an operator
type CreateOperatorInput struct {
	Username    string
	Password    string
	DisplayName string
	Role        string
}

func toOperatorInfo(o *identity.Operator) OperatorInfo {
	return OperatorInfo{
		ID:          o.ID,
		TenantID:    o.TenantID,
		Username:    o.Username,
		DisplayName: o.DisplayNameOrUsername(),
		Role:        o.Role,
		Status:      string(o.Status),
		LastLoginAt: o.LastLoginAt,
	}
}
