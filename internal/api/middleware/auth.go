package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"buildex/backoffice/internal/auth"
	"buildex/backoffice/internal/models"
	"buildex/backoffice/internal/utils"
)

const (
	// ContextKeyAdminID holds the authenticated admin's id string.
	ContextKeyAdminID = "adminID"
	// ContextKeyRole holds the authenticated admin's models.AdminRole.
	ContextKeyRole = "adminRole"
)

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abort(c, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
			return
		}

		claims, err := auth.ValidateJWT(parts[1], jwtSecret)
		if err != nil {
			abort(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		c.Set(ContextKeyAdminID, claims.AdminID)
		c.Set(ContextKeyRole, claims.Role)
		c.Next()
	}
}

// OwnerMiddleware restricts a route to owner accounts. Assumes AuthMiddleware runs first.
func OwnerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(ContextKeyRole)
		if r, ok := role.(models.AdminRole); !ok || r != models.RoleOwner {
			abort(c, http.StatusForbidden, "Owner privileges required")
			return
		}
		c.Next()
	}
}

// AdminIDFromContext returns the id set by AuthMiddleware.
func AdminIDFromContext(c *gin.Context) (utils.SixID, bool) {
	id, err := utils.ParseSixID(c.GetString(ContextKeyAdminID))
	if err != nil {
		return utils.SixID{}, false
	}
	return id, true
}
