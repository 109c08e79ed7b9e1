package middleware

import (
	"net/http"
	"strings"

	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/config"
	"github.com/freshwaterbruce2/vibe-booking-platform-sub007/internal/auth"

	"github.com/gin-gonic/gin"
)

// AuthRequired validates the caller's service token and sets the service
// name in context for audit attribution.
func AuthRequired(cfg *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		claims, err := auth.ParseServiceToken(cfg, parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set("service", claims.Service)
		c.Next()
	}
}

// GetService returns the authenticated caller name (must be used after
// AuthRequired).
func GetService(c *gin.Context) string {
	v, _ := c.Get("service")
	if v == nil {
		return ""
	}
	return v.(string)
}
