package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/temcen/lotus/internal/services"
	"github.com/temcen/lotus/internal/store"
)

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// statusForError maps pipeline errors onto the HTTP error envelope.
func statusForError(err error) (int, string, string) {
	var synthErr *services.SynthesisError
	var retrievalErr *services.RetrievalError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "ASSESSMENT_TIMEOUT", "The assessment did not finish in time"
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "REQUEST_CANCELLED", "The request was cancelled"
	case errors.As(err, &synthErr):
		return http.StatusBadGateway, "ASSESSMENT_FAILED", "The reasoning service did not return a usable assessment"
	case errors.Is(err, services.ErrEmptyText):
		return http.StatusBadRequest, "VALIDATION_FAILED", "Query cannot be empty"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Ingredient not found"
	case errors.As(err, &retrievalErr):
		return http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Similarity search is temporarily unavailable"
	default:
		return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal server error"
	}
}
