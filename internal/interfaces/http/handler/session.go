package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/application/identity"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/auth"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/interfaces/http/dto"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/interfaces/http/middleware"
)

// SessionService signs operators in and out
type SessionService interface {
	Login(ctx context.Context, input identity.LoginInput) (*identity.LoginResult, error)
	Logout(ctx context.Context, claims *auth.Claims) error
	CreateOperator(ctx context.Context, input identity.CreateOperatorInput) (*identity.OperatorInfo, error)
	ListOperators(ctx context.Context) []identity.OperatorInfo
}

var _ SessionService = (*identity.Service)(nil)

// SessionHandler handles operator sessions
type SessionHandler struct {
	BaseHandler
	svc SessionService
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(svc SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// Login exchanges credentials for a session token of the active tenant
func (h *SessionHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if !h.Bind(c, &req) {
		return
	}
	res, err := h.svc.Login(c.Request.Context(), identity.LoginInput{Username: req.Username, Password: req.Password})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.LoginResponse{
		AccessToken: res.AccessToken,
		TokenType:   res.TokenType,
		ExpiresAt:   res.ExpiresAt.UTC().Format(time.RFC3339),
		Operator:    res.Operator,
	})
}

// Logout revokes the current session
func (h *SessionHandler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), middleware.GetClaims(c)); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Me returns the claims of the current session
func (h *SessionHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	h.Success(c, gin.H{
		"userId":    claims.UserID,
		"username":  claims.Username,
		"role":      claims.Role,
		"tenantId":  claims.TenantID,
		"expiresAt": claims.ExpiresAtTime().UTC().Format(time.RFC3339),
	})
}

// ListOperators returns the operators of the active tenant
func (h *SessionHandler) ListOperators(c *gin.Context) {
	h.Success(c, h.svc.ListOperators(c.Request.Context()))
}

// CreateOperator adds an operator to the active tenant
func (h *SessionHandler) CreateOperator(c *gin.Context) {
	var req dto.CreateOperatorRequest
	if !h.Bind(c, &req) {
		return
	}
	op, err := h.svc.CreateOperator(c.Request.Context(), identity.CreateOperatorInput{
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Role:        req.Role,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, op)
}
