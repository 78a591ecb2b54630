package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/lotus/internal/services"
)

type HealthHandler struct {
	logger        *logrus.Logger
	healthService services.HealthCheckerInterface
	startedAt     time.Time
}

func NewHealthHandler(logger *logrus.Logger, healthService services.HealthCheckerInterface) *HealthHandler {
	return &HealthHandler{
		logger:        logger,
		healthService: healthService,
		startedAt:     time.Now(),
	}
}

// Check is the readiness probe. A degraded service still takes traffic:
// losing the warm cache or the relationship graph only slows assessments down.
func (h *HealthHandler) Check(c *gin.Context) {
	status := h.healthService.CheckHealth(c.Request.Context())

	httpStatus := http.StatusOK
	switch status.Status {
	case "healthy":
	case "degraded":
		h.logger.WithField("failures", status.NonCritical).Warn("Serving with degraded dependencies")
	case "unhealthy":
		httpStatus = http.StatusServiceUnavailable
		h.logger.WithField("failures", status.Critical).Error("Critical dependency unavailable")
	default:
		httpStatus = http.StatusInternalServerError
	}

	c.JSON(httpStatus, status)
}

// Live reports that the process is up without touching any dependency.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}
