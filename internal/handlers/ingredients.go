package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/lotus/internal/services"
	"github.com/temcen/lotus/pkg/models"
)

const defaultListLimit = 20

type IngredientHandler struct {
	assessor  services.AssessorInterface
	library   services.IngredientLibraryInterface
	validator *validator.Validate
	logger    *logrus.Logger
}

func NewIngredientHandler(assessor services.AssessorInterface, library services.IngredientLibraryInterface, logger *logrus.Logger) *IngredientHandler {
	return &IngredientHandler{
		assessor:  assessor,
		library:   library,
		validator: validator.New(),
		logger:    logger,
	}
}

// Search finds library ingredients semantically similar to q.
func (h *IngredientHandler) Search(c *gin.Context) {
	var request models.SearchRequest
	if err := c.ShouldBindQuery(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_QUERY", "Invalid query parameters")
		return
	}
	request.Query = strings.TrimSpace(request.Query)
	if err := h.validator.Struct(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	filter := riskFilter(request.RiskLevel)
	matches, err := h.assessor.SearchSimilar(c.Request.Context(), request.Query, request.Limit, filter)
	if err != nil {
		status, code, message := statusForError(err)
		h.logger.WithError(err).WithField("query", request.Query).Warn("Ingredient search failed")
		abortWithError(c, status, code, message)
		return
	}

	c.JSON(http.StatusOK, models.SearchResponse{
		Query:   request.Query,
		Results: matches,
		Count:   len(matches),
	})
}

// List pages through the reference library.
func (h *IngredientHandler) List(c *gin.Context) {
	var request models.IngredientListRequest
	if err := c.ShouldBindQuery(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "INVALID_QUERY", "Invalid query parameters")
		return
	}
	if err := h.validator.Struct(&request); err != nil {
		abortWithError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}
	if request.Limit == 0 {
		request.Limit = defaultListLimit
	}

	items, total, err := h.library.List(
		c.Request.Context(),
		request.Limit,
		request.Offset,
		riskFilter(request.RiskLevel),
		strings.TrimSpace(request.Name),
	)
	if err != nil {
		status, code, message := statusForError(err)
		h.logger.WithError(err).Error("Failed to list ingredients")
		abortWithError(c, status, code, message)
		return
	}
	if items == nil {
		items = []models.ReferenceIngredient{}
	}

	c.JSON(http.StatusOK, models.IngredientListResponse{
		Ingredients: items,
		Pagination: models.PaginationResponse{
			Limit:   request.Limit,
			Offset:  request.Offset,
			HasMore: request.Offset+len(items) < total,
			Total:   &total,
		},
	})
}

func (h *IngredientHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		abortWithError(c, http.StatusBadRequest, "INVALID_INGREDIENT_ID", "Invalid ingredient ID format")
		return
	}

	ingredient, err := h.library.Get(c.Request.Context(), id)
	if err != nil {
		status, code, message := statusForError(err)
		if status >= http.StatusInternalServerError {
			h.logger.WithError(err).WithField("ingredient_id", id).Error("Failed to load ingredient")
		}
		abortWithError(c, status, code, message)
		return
	}

	c.JSON(http.StatusOK, ingredient)
}

// riskFilter turns a validated query value into a filter; "all" or empty means none.
func riskFilter(value string) *models.RiskLevel {
	level, ok := models.ParseRiskLevel(value)
	if !ok {
		return nil
	}
	return &level
}
