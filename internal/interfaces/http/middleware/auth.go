package middleware

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/auth"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/logger"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/interfaces/http/dto"
)

// Gin context keys set by Auth
const (
	ClaimsKey   = "claims"
	TenantIDKey = "tenant_id"
	UsernameKey = "username"

	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// Authenticator validates operator session tokens
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

// TenantSource reports the tenant the agent is working in
type TenantSource interface {
	ActiveTenant() string
}

// Auth requires a valid session issued for the active tenant. A session from
// another tenant is refused, so switching tenants means signing in again.
func Auth(authn Authenticator, tenants TenantSource, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			abort(c, dto.ErrCodeUnauthorized, "Missing authorization token")
			return
		}

		claims, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			msg := "Invalid session token"
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				msg = "Session has expired"
			case errors.Is(err, auth.ErrTokenRevoked):
				msg = "Session has been closed"
			}
			log.Debug("Rejected session token", zap.Error(err), zap.String("path", c.Request.URL.Path))
			abort(c, dto.ErrCodeTokenInvalid, msg)
			return
		}

		if active := tenants.ActiveTenant(); claims.TenantID != active {
			log.Warn("Session tenant does not match active tenant",
				zap.String("session_tenant", claims.TenantID),
				zap.String("active_tenant", active),
				zap.String("username", claims.Username))
			abort(c, dto.ErrCodeTenantMismatch, "Session belongs to another tenant")
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(TenantIDKey, claims.TenantID)
		c.Set(UsernameKey, claims.Username)

		ctx := logger.WithTenantID(c.Request.Context(), claims.TenantID)
		ctx = logger.WithOperator(ctx, claims.Username)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRole allows only sessions holding one of roles. Must run after Auth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			abort(c, dto.ErrCodeUnauthorized, "Authentication required")
			return
		}
		if !slices.Contains(roles, claims.Role) {
			abort(c, dto.ErrCodeForbidden, "Operator role is not allowed to do this")
			return
		}
		c.Next()
	}
}

// GetClaims returns the session claims set by Auth, or nil
func GetClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(ClaimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// bearerToken reads the Authorization header. Browsers cannot set headers on
// WebSocket handshakes, so upgrades may pass the token as access_token.
func bearerToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader(AuthHeaderKey); header != "" {
		token, ok := strings.CutPrefix(header, BearerPrefix)
		return token, ok && token != ""
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		token := c.Query("access_token")
		return token, token != ""
	}
	return "", false
}
