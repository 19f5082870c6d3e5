// Package handler holds the gin handlers of the agent API.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/logger"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/interfaces/http/dto"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, meta dto.Meta) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, meta))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// ErrorWithCode sends an error response, deriving the status from the code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponse(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.ErrorWithCode(c, dto.ErrCodeBadRequest, message)
}

// HandleError classifies err and sends it. Internal errors are logged with
// the request logger; their text never reaches the client.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	info := dto.ErrorFromError(err)
	info.RequestID = middleware.GetRequestID(c)
	status := dto.GetHTTPStatus(info.Code)
	if status >= http.StatusInternalServerError {
		logger.GetGinLogger(c).Error("Request failed", zap.String("code", info.Code), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, dto.Response{Error: info})
}

// PartialResult answers a write that was applied in memory but could not be
// persisted: the client gets both the stored data and the reason.
func (h *BaseHandler) PartialResult(c *gin.Context, data any, err error) {
	info := dto.ErrorFromError(err)
	info.RequestID = middleware.GetRequestID(c)
	logger.GetGinLogger(c).Warn("Write kept in memory only", zap.String("code", info.Code), zap.Error(err))
	c.JSON(dto.GetHTTPStatus(info.Code), dto.Response{Data: data, Error: info})
}

// Bind decodes the JSON body into req, answering the error itself
func (h *BaseHandler) Bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.HandleBindError(c, err)
		return false
	}
	return true
}

// BindQuery decodes query parameters into req, answering the error itself
func (h *BaseHandler) BindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		middleware.HandleBindError(c, err)
		return false
	}
	return true
}

// isQuotaError reports whether err means the write only lives in memory
func isQuotaError(err error) bool {
	return errors.Is(err, shared.ErrQuotaExceeded)
}

func pageMeta(total int64, page, pageSize, totalPages int) dto.Meta {
	return dto.Meta{Total: total, Page: page, PageSize: pageSize, TotalPages: totalPages}
}

func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil && v > 0 {
		return v
	}
	return def
}
