package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/internal/metrics"
	"github.com/layer-3/agora/service"
)

// UserAddressKey is the gin context key of the authenticated wallet address.
const UserAddressKey = "userAddress"

// AuthMiddleware creates middleware that validates access tokens
func AuthMiddleware(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")

		// Check if the Authorization header is present and in correct format
		if len(auth) < 8 || auth[:7] != "Bearer " {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		session, err := authService.ValidateAccessToken(c.Request.Context(), auth[7:])
		if err != nil {
			switch {
			case errors.Is(err, core.ErrTokenExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
			case errors.Is(err, core.ErrTokenInvalidated):
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token revoked"})
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			return
		}

		c.Set(UserAddressKey, session.Address)

		c.Next()
	}
}

// UserAddress returns the address set by AuthMiddleware.
func UserAddress(c *gin.Context) (string, bool) {
	address := c.GetString(UserAddressKey)
	return address, address != ""
}

// MetricsMiddleware counts requests by status and records latency per route.
func MetricsMiddleware(rec metrics.Recorder) gin.HandlerFunc {
	rec = metrics.OrNoop(rec)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		labels := map[string]string{"outcome": strconv.Itoa(c.Writer.Status())}
		rec.IncCounter("http_requests", labels)
		metrics.Since(rec, "http "+c.Request.Method+" "+route, start, labels)
	}
}
