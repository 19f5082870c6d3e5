package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/notify"
)

// NotificationHub streams operator notifications
type NotificationHub interface {
	Recent(tenant string, n int) []shared.Notification
	ServeWS(w http.ResponseWriter, r *http.Request, tenant string)
}

var _ NotificationHub = (*notify.Hub)(nil)

// NotificationHandler serves the toast stream of the active tenant
type NotificationHandler struct {
	BaseHandler
	hub     NotificationHub
	tenants TenantReader
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(hub NotificationHub, tenants TenantReader) *NotificationHandler {
	return &NotificationHandler{hub: hub, tenants: tenants}
}

// Recent returns the latest notifications, oldest first
func (h *NotificationHandler) Recent(c *gin.Context) {
	n := min(queryInt(c, "limit", 20), 100)
	h.Success(c, h.hub.Recent(h.tenants.ActiveTenant(), n))
}

// Stream upgrades to a WebSocket carrying new notifications
func (h *NotificationHandler) Stream(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request, h.tenants.ActiveTenant())
}
