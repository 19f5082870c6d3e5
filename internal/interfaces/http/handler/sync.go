package handler

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/application/reconcile"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/interfaces/http/dto"
)

// SyncManager exposes the reconcilers of the synced collections
type SyncManager interface {
	Statuses() []reconcile.Status
	InvalidateAll()
	Pull(ctx context.Context, c shared.Collection, key reconcile.PullKey) (reconcile.PullResult, error)
}

var _ SyncManager = (*reconcile.Manager)(nil)

// SyncHandler reports and drives synchronization with the remote service
type SyncHandler struct {
	BaseHandler
	mgr SyncManager
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(mgr SyncManager) *SyncHandler {
	return &SyncHandler{mgr: mgr}
}

// Status returns the state of every synced collection
func (h *SyncHandler) Status(c *gin.Context) {
	h.Success(c, h.mgr.Statuses())
}

// Invalidate makes every collection pull again on its next view
func (h *SyncHandler) Invalidate(c *gin.Context) {
	h.mgr.InvalidateAll()
	h.NoContent(c)
}

// Pull refreshes one page of a collection and waits for the result. A failed
// pull still answers 200: local data stays authoritative and the outcome says
// what happened.
func (h *SyncHandler) Pull(c *gin.Context) {
	name := c.Param("collection")
	coll, ok := shared.ParseCollection(name)
	if !ok {
		h.ErrorWithCode(c, dto.ErrCodeNotFound, fmt.Sprintf("unknown collection %q", name))
		return
	}
	var req dto.ListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	res, err := h.mgr.Pull(c.Request.Context(), coll, reconcile.PullKey{Page: req.Page, Search: req.Search})
	if err != nil && res.Outcome != reconcile.OutcomeFailed {
		h.HandleError(c, err)
		return
	}
	out := gin.H{"result": res}
	if err != nil {
		out["error"] = dto.ErrorFromError(err)
	}
	h.Success(c, out)
}
