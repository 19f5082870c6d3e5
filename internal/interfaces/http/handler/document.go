package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/gin-gonic/gin"

	appdoc "github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/application/document"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/document"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/interfaces/http/dto"
)

// DocumentService generates and serves printable documents
type DocumentService interface {
	GenerateItinerary(ctx context.Context, id string) (*appdoc.GenerateResult, error)
	GenerateQuotation(ctx context.Context, id string) (*appdoc.GenerateResult, error)
	Preview(ctx context.Context, kind document.Kind, id string) (*appdoc.PreviewResult, error)
	Open(ctx context.Context, rel string) (io.ReadCloser, error)
}

var _ DocumentService = (*appdoc.Service)(nil)

// DocumentHandler handles PDF generation and download
type DocumentHandler struct {
	BaseHandler
	svc DocumentService
}

// NewDocumentHandler creates a new DocumentHandler
func NewDocumentHandler(svc DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// GenerateItinerary prints the itinerary named by :id
func (h *DocumentHandler) GenerateItinerary(c *gin.Context) {
	res, err := h.svc.GenerateItinerary(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, res)
}

// GenerateQuotation prints the quotation named by :id
func (h *DocumentHandler) GenerateQuotation(c *gin.Context) {
	res, err := h.svc.GenerateQuotation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, res)
}

// Preview returns the paged HTML of :kind/:id. With ?format=html the page
// itself is served instead of the JSON envelope.
func (h *DocumentHandler) Preview(c *gin.Context) {
	kind := document.Kind(c.Param("kind"))
	if kind != document.KindItinerary && kind != document.KindQuotation {
		h.ErrorWithCode(c, dto.ErrCodeNotFound, fmt.Sprintf("unknown document kind %q", kind))
		return
	}
	res, err := h.svc.Preview(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if c.Query("format") == "html" {
		c.Header("X-Document-Pages", fmt.Sprint(res.Pages))
		c.Header("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; img-src data: https:; font-src data:")
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(res.HTML))
		return
	}
	h.Success(c, res)
}

// Download streams a stored PDF of the active tenant
func (h *DocumentHandler) Download(c *gin.Context) {
	rel := c.Param("path")
	rc, err := h.svc.Open(c.Request.Context(), rel)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, -1, "application/pdf", rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`inline; filename=%q`, path.Base(rel)),
		"Cache-Control":       "private, no-cache",
	})
}
