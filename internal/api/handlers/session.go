package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AmitAK1/missing-object-surveillance/internal/logging"
	"github.com/AmitAK1/missing-object-surveillance/internal/models"
	"github.com/AmitAK1/missing-object-surveillance/internal/worker"
)

// SessionController is the part of the worker the API drives.
type SessionController interface {
	Status() worker.Status
	RequestSetup(ctx context.Context, rois []models.Rect) (worker.SetupReport, error)
	LatestFrame() []byte
}

type SessionHandler struct {
	worker       SessionController
	setupTimeout time.Duration
}

func NewSessionHandler(w SessionController, setupTimeout time.Duration) *SessionHandler {
	return &SessionHandler{worker: w, setupTimeout: setupTimeout}
}

// @Summary Monitoring status
// @Description Current per-target and overall monitoring status
// @Tags session
// @Produce json
// @Success 200 {object} worker.Status
// @Router /session [get]
func (h *SessionHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.worker.Status())
}

// @Summary Set up monitored ROIs
// @Description Re-initialize monitoring from the next frame with the given ROIs
// @Tags session
// @Accept json
// @Produce json
// @Param request body models.ROIRequest true "ROIs"
// @Success 200 {object} worker.SetupReport
// @Failure 400 {object} map[string]string
// @Failure 504 {object} map[string]string
// @Router /session/rois [post]
func (h *SessionHandler) SetupROIs(c *gin.Context) {
	var req models.ROIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.setupTimeout)
	defer cancel()

	report, err := h.worker.RequestSetup(ctx, req.ROIs)
	if err != nil {
		code := setupErrorStatus(err)
		logging.Warn(c).Err(err).Int("status", code).Msg("ROI setup rejected")
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}

	logging.Info(c).
		Bool("applied", report.Applied).
		Int("monitored", report.Monitored).
		Int("requested", len(req.ROIs)).
		Msg("ROI setup completed")
	c.JSON(http.StatusOK, report)
}

// @Summary Latest annotated frame
// @Tags session
// @Produce jpeg
// @Success 200 {file} binary
// @Failure 404 {object} map[string]string
// @Router /session/frame [get]
func (h *SessionHandler) GetFrame(c *gin.Context) {
	frame := h.worker.LatestFrame()
	if frame == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no frame available yet"})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/jpeg", frame)
}

func setupErrorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidRect),
		errors.Is(err, worker.ErrROITooSmall),
		errors.Is(err, worker.ErrNoROIs):
		return http.StatusBadRequest
	case errors.Is(err, worker.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, worker.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
