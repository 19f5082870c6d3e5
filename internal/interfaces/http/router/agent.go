package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/identity"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/interfaces/http/handler"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/interfaces/http/middleware"
)

// Handlers are the handlers the agent API serves
type Handlers struct {
	Session       *handler.SessionHandler
	Tenant        *handler.TenantHandler
	Records       *handler.RecordHandler
	PaymentPlans  *handler.PaymentPlanHandler
	Documents     *handler.DocumentHandler
	Sync          *handler.SyncHandler
	Notifications *handler.NotificationHandler
	System        *handler.SystemHandler

	// Metrics is served at MetricsPath outside the versioned API when set
	Metrics     http.Handler
	MetricsPath string
}

// Security is how requests are authenticated and throttled
type Security struct {
	Authenticator middleware.Authenticator
	Tenants       middleware.TenantSource
	// LoginLimiter throttles login attempts per client IP; nil disables it
	LoginLimiter *middleware.RateLimiter
	Logger       *zap.Logger
}

// Agent mounts the agent API on engine and returns the versioned routes
func Agent(engine *gin.Engine, h Handlers, sec Security) []string {
	engine.GET("/health", h.System.Health)
	engine.GET("/ready", h.System.Ready)
	if h.Metrics != nil {
		metricsPath := h.MetricsPath
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		engine.GET(metricsPath, gin.WrapH(h.Metrics))
	}
	engine.NoRoute(h.System.NotFound)

	authn := middleware.Auth(sec.Authenticator, sec.Tenants, sec.Logger)
	admin := middleware.RequireRole(identity.RoleAdmin)

	login := []gin.HandlerFunc{h.Session.Login}
	if sec.LoginLimiter != nil {
		login = append([]gin.HandlerFunc{middleware.RateLimit(sec.LoginLimiter)}, login...)
	}
	session := NewGroup("session", "/session").
		POST("/login", login...).
		POST("/logout", authn, h.Session.Logout).
		GET("/me", authn, h.Session.Me)

	operators := NewGroup("operators", "/operators", authn, admin).
		GET("", h.Session.ListOperators).
		POST("", h.Session.CreateOperator)

	tenant := NewGroup("tenant", "/tenant", authn).
		GET("", h.Tenant.Get).
		PUT("", admin, h.Tenant.Switch)

	records := NewGroup("records", "/records/:collection", authn).
		GET("", h.Records.List).
		POST("", h.Records.Create).
		GET("/:id", h.Records.Get).
		PUT("/:id", h.Records.Update).
		DELETE("/:id", h.Records.Delete)

	plans := NewGroup("payment-plans", "/payment-plans", authn).
		POST("/preview", h.PaymentPlans.Preview).
		GET("", h.PaymentPlans.List).
		POST("", h.PaymentPlans.Create).
		GET("/:id", h.PaymentPlans.Get).
		PUT("/:id", h.PaymentPlans.Update).
		DELETE("/:id", h.PaymentPlans.Delete)

	documents := NewGroup("documents", "/documents", authn).
		POST("/itineraries/:id", h.Documents.GenerateItinerary).
		POST("/quotations/:id", h.Documents.GenerateQuotation).
		GET("/preview/:kind/:id", h.Documents.Preview).
		GET("/files/*path", h.Documents.Download)

	sync := NewGroup("sync", "/sync", authn).
		GET("", h.Sync.Status).
		POST("/invalidate", h.Sync.Invalidate).
		POST("/:collection", h.Sync.Pull)

	notifications := NewGroup("notifications", "/notifications", authn).
		GET("", h.Notifications.Recent).
		GET("/ws", h.Notifications.Stream)

	system := NewGroup("system", "/system", authn).
		GET("/info", h.System.Info).
		GET("/snapshot", admin, h.System.Snapshot)

	api := NewAPI("v1").Add(session, operators, tenant, records, plans, documents, sync, notifications, system)
	api.Mount(engine)
	return api.Routes()
}
