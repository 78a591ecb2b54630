package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/lotus/internal/services"
	"github.com/temcen/lotus/pkg/models"
)

type AssessmentHandler struct {
	assessor  services.AssessorInterface
	validator *validator.Validate
	logger    *logrus.Logger
}

func NewAssessmentHandler(assessor services.AssessorInterface, logger *logrus.Logger) *AssessmentHandler {
	return &AssessmentHandler{
		assessor:  assessor,
		validator: validator.New(),
		logger:    logger,
	}
}

// Assess scores a scanned ingredient list for the requesting user.
func (h *AssessmentHandler) Assess(c *gin.Context) {
	var request models.AssessRequest

	if err := c.ShouldBindJSON(&request); err != nil {
		h.logger.WithError(err).Warn("Invalid JSON in assessment request")
		abortWithError(c, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return
	}

	if err := h.validator.Struct(&request); err != nil {
		h.logger.WithError(err).Warn("Assessment request validation failed")
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Assessment request validation failed",
				"details": err.Error(),
			},
		})
		return
	}

	assessment, err := h.assessor.Assess(c.Request.Context(), models.ScanInput{
		IngredientNames: request.Ingredients,
		UserID:          request.UserID,
	})
	if err != nil {
		status, code, message := statusForError(err)
		h.logger.WithFields(logrus.Fields{
			"error":       err.Error(),
			"ingredients": len(request.Ingredients),
			"status":      status,
		}).Error("Assessment failed")
		abortWithError(c, status, code, message)
		return
	}

	c.JSON(http.StatusOK, assessment)
}
