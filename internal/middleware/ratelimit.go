package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/lotus/internal/services"
)

// UserIDHeader optionally identifies the caller; anonymous callers are limited by IP.
const UserIDHeader = "X-User-ID"

func RateLimit(limiter services.RateLimiterInterface, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := "ip:" + c.ClientIP()
		if userID := c.GetHeader(UserIDHeader); userID != "" {
			clientID = "user:" + userID
		}

		allowed, info := limiter.Allow(c.Request.Context(), clientID)

		c.Header("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime, 10))

		if !allowed {
			logger.WithFields(logrus.Fields{
				"client": clientID,
				"limit":  info.Limit,
				"path":   c.Request.URL.Path,
			}).Warn("Rate limit exceeded")

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMIT_EXCEEDED",
					"message": "Rate limit exceeded. Please try again later.",
				},
				"rate_limit": info,
			})
			return
		}

		c.Next()
	}
}
