package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Probe reports whether one dependency is usable.
type Probe func() bool

type HealthHandler struct {
	WorkerID string
	Version  string
	probes   map[string]Probe
}

func NewHealthHandler(workerID, version string, probes map[string]Probe) *HealthHandler {
	return &HealthHandler{WorkerID: workerID, Version: version, probes: probes}
}

type HealthResponse struct {
	Status     string          `json:"status" example:"healthy"`
	WorkerID   string          `json:"worker_id" example:"worker-1"`
	Components map[string]bool `json:"components,omitempty"`
}

type WorkerInfoResponse struct {
	WorkerID     string   `json:"worker_id" example:"worker-1"`
	Status       string   `json:"status" example:"running"`
	Version      string   `json:"version" example:"1.0.0"`
	Capabilities []string `json:"capabilities"`
}

// @Summary Health check
// @Description Check if the worker and its dependencies are usable
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	resp := HealthResponse{Status: "healthy", WorkerID: h.WorkerID}
	code := http.StatusOK

	if len(h.probes) > 0 {
		resp.Components = make(map[string]bool, len(h.probes))
		for name, probe := range h.probes {
			ok := probe()
			resp.Components[name] = ok
			if !ok {
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
	}
	c.JSON(code, resp)
}

// @Summary Worker information
// @Tags health
// @Produce json
// @Success 200 {object} WorkerInfoResponse
// @Router / [get]
func (h *HealthHandler) WorkerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, WorkerInfoResponse{
		WorkerID: h.WorkerID,
		Status:   "running",
		Version:  h.Version,
		Capabilities: []string{
			"object_tracking",
			"missing_object_alerts",
			"alert_history",
		},
	})
}
