package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/interfaces/http/dto"
)

// Snapshotter exports the encoded local cache
type Snapshotter interface {
	Snapshot() ([]byte, error)
	ActiveTenant() string
}

// ReadinessCheck reports whether a dependency can serve requests
type ReadinessCheck func(ctx context.Context) error

// SystemHandler handles health, readiness and diagnostics
type SystemHandler struct {
	BaseHandler
	name      string
	version   string
	startTime time.Time
	snapshots Snapshotter
	checks    map[string]ReadinessCheck
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(name, version string, snapshots Snapshotter, checks map[string]ReadinessCheck) *SystemHandler {
	return &SystemHandler{
		name:      name,
		version:   version,
		startTime: time.Now(),
		snapshots: snapshots,
		checks:    checks,
	}
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	GoVersion    string `json:"go_version"`
	Uptime       string `json:"uptime"`
	ActiveTenant string `json:"active_tenant"`
}

// Health answers as long as the process is serving
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready runs every readiness check
func (h *SystemHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	c.JSON(status, gin.H{"ready": status == http.StatusOK, "checks": results})
}

// Info returns version and uptime
func (h *SystemHandler) Info(c *gin.Context) {
	h.Success(c, SystemInfoResponse{
		Name:         h.name,
		Version:      h.version,
		GoVersion:    runtime.Version(),
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		ActiveTenant: h.snapshots.ActiveTenant(),
	})
}

// Snapshot downloads the encoded local cache, every tenant included
func (h *SystemHandler) Snapshot(c *gin.Context) {
	data, err := h.snapshots.Snapshot()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	name := fmt.Sprintf("snapshot-%s.bin", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// NotFound answers unmatched routes with the standard envelope
func (h *SystemHandler) NotFound(c *gin.Context) {
	h.ErrorWithCode(c, dto.ErrCodeNotFound, "route not found")
}
