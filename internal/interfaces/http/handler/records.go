package handler

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/application/records"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/interfaces/http/dto"
)

// RecordService serves the collections of the active tenant
type RecordService interface {
	List(ctx context.Context, c shared.Collection, q records.ListQuery) (*records.ListResult, error)
	Get(ctx context.Context, c shared.Collection, id string) (shared.Record, error)
	Save(ctx context.Context, c shared.Collection, r shared.Record) (*records.SaveResult, error)
	Delete(ctx context.Context, c shared.Collection, id string) error
}

var _ RecordService = (*records.Service)(nil)

// RecordHandler is the generic collection API
type RecordHandler struct {
	BaseHandler
	svc RecordService
}

// NewRecordHandler creates a new RecordHandler
func NewRecordHandler(svc RecordService) *RecordHandler {
	return &RecordHandler{svc: svc}
}

// collection resolves the :collection parameter, local or remote spelling
func (h *RecordHandler) collection(c *gin.Context) (shared.Collection, bool) {
	name := c.Param("collection")
	coll, ok := shared.ParseCollection(name)
	if !ok {
		h.ErrorWithCode(c, dto.ErrCodeNotFound, fmt.Sprintf("unknown collection %q", name))
	}
	return coll, ok
}

// List returns the local view of a collection and starts a refresh
func (h *RecordHandler) List(c *gin.Context) {
	coll, ok := h.collection(c)
	if !ok {
		return
	}
	var req dto.ListRequest
	if !h.BindQuery(c, &req) {
		return
	}
	res, err := h.svc.List(c.Request.Context(), coll, records.ListQuery{
		Page:     req.Page,
		PageSize: req.PageSize,
		Search:   req.Search,
		Wait:     req.Wait,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, res, pageMeta(res.Total, res.Page, req.PageSize, res.TotalPages))
}

// Get returns one record
func (h *RecordHandler) Get(c *gin.Context) {
	coll, ok := h.collection(c)
	if !ok {
		return
	}
	rec, err := h.svc.Get(c.Request.Context(), coll, c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rec)
}

// Create stores a new record. A client supplied id is kept.
func (h *RecordHandler) Create(c *gin.Context) {
	h.save(c, "")
}

// Update replaces the record named by the path
func (h *RecordHandler) Update(c *gin.Context) {
	h.save(c, c.Param("id"))
}

func (h *RecordHandler) save(c *gin.Context, id string) {
	coll, ok := h.collection(c)
	if !ok {
		return
	}
	var rec shared.Record
	if !h.Bind(c, &rec) {
		return
	}
	if id != "" {
		rec.ID = id
	}
	res, err := h.svc.Save(c.Request.Context(), coll, rec)
	switch {
	case err == nil && id == "":
		h.Created(c, res)
	case err == nil:
		h.Success(c, res)
	case res != nil && isQuotaError(err):
		h.PartialResult(c, res, err)
	default:
		h.HandleError(c, err)
	}
}

// Delete removes a record
func (h *RecordHandler) Delete(c *gin.Context) {
	coll, ok := h.collection(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), coll, c.Param("id")); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
