package middleware

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/temcen/lotus/internal/config"
)

// CORS lets browser clients call the API and read the request-id and rate-limit headers.
// Credentials are only allowed for an explicit origin list.
func CORS(cfg *config.Config) gin.HandlerFunc {
	policy := cfg.Security.CORS
	wildcard := len(policy.AllowedOrigins) == 0 || slices.Contains(policy.AllowedOrigins, "*")

	corsConfig := cors.Config{
		AllowMethods:     policy.AllowedMethods,
		AllowHeaders:     append([]string{UserIDHeader, RequestIDHeader}, policy.AllowedHeaders...),
		ExposeHeaders:    []string{RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: !wildcard,
		MaxAge:           12 * time.Hour,
	}
	if wildcard {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = policy.AllowedOrigins
	}

	return cors.New(corsConfig)
}
