package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AmitAK1/missing-object-surveillance/internal/logging"
	"github.com/AmitAK1/missing-object-surveillance/internal/services/history"
)

const maxAlertsLimit = 500

// AlertHistory is the read side of the alert history store.
type AlertHistory interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
	CountByLabel(ctx context.Context) ([]history.LabelCount, error)
	CountByHour(ctx context.Context) ([]history.HourCount, error)
	Summary(ctx context.Context) (history.Summary, error)
}

type AlertsHandler struct {
	history AlertHistory
}

func NewAlertsHandler(h AlertHistory) *AlertsHandler {
	return &AlertsHandler{history: h}
}

// @Summary Recent alerts
// @Tags alerts
// @Produce json
// @Param limit query int false "max entries (default 50, max 500)"
// @Success 200 {object} map[string]interface{}
// @Router /alerts [get]
func (h *AlertsHandler) ListAlerts(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxAlertsLimit)
	}

	entries, err := h.history.Recent(c.Request.Context(), limit)
	if err != nil {
		logging.Error(c).Err(err).Msg("Failed to read alert history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read alert history"})
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": entries, "count": len(entries)})
}

// @Summary Alert statistics
// @Description Totals, alerts per object label and alerts per hour of day
// @Tags alerts
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /alerts/stats [get]
func (h *AlertsHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	summary, err := h.history.Summary(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	byLabel, err := h.history.CountByLabel(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	byHour, err := h.history.CountByHour(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"summary":  summary,
		"by_label": nonNil(byLabel),
		"by_hour":  nonNil(byHour),
	})
}

func (h *AlertsHandler) fail(c *gin.Context, err error) {
	logging.Error(c).Err(err).Msg("Failed to compute alert statistics")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute alert statistics"})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
