package handler

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/application/reconcile"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/interfaces/http/dto"
)

// TenantSwitcher changes the tenant the agent works in
type TenantSwitcher interface {
	SwitchTenant(ctx context.Context, tenantID string) error
}

// TenantReader reports the active tenant
type TenantReader interface {
	ActiveTenant() string
}

var _ TenantSwitcher = (*reconcile.Manager)(nil)

// TenantHandler reads and switches the active tenant
type TenantHandler struct {
	BaseHandler
	tenants  TenantReader
	switcher TenantSwitcher
}

// NewTenantHandler creates a new TenantHandler
func NewTenantHandler(tenants TenantReader, switcher TenantSwitcher) *TenantHandler {
	return &TenantHandler{tenants: tenants, switcher: switcher}
}

// Get returns the active tenant
func (h *TenantHandler) Get(c *gin.Context) {
	h.Success(c, gin.H{"tenantId": h.tenants.ActiveTenant()})
}

// Switch selects another tenant. The caller's session stays bound to the old
// tenant and stops working; operators sign in again.
func (h *TenantHandler) Switch(c *gin.Context) {
	var req dto.SwitchTenantRequest
	if !h.Bind(c, &req) {
		return
	}
	err := h.switcher.SwitchTenant(c.Request.Context(), req.TenantID)
	active := h.tenants.ActiveTenant()
	if active != req.TenantID {
		if err == nil {
			err = fmt.Errorf("switch to tenant %q did not take effect", req.TenantID)
		}
		h.HandleError(c, err)
		return
	}
	if err != nil {
		// switched, but the new tenant could not be persisted
		h.PartialResult(c, gin.H{"tenantId": active}, err)
		return
	}
	h.Success(c, gin.H{"tenantId": active})
}
