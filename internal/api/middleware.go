package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lusandamrasi/digs-mate-stellenbosch-sub000/internal/auth"
)

// AuthMiddleware resolves the viewer's identity from the bearer token and
// sets it in the request context. Identity issuance itself lives outside
// this service.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")

		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := auth.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("handle", claims.Handle)

		c.Next()
	}
}
