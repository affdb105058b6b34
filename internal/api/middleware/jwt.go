package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/fenger067850/todo-manager/internal/api/auth"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 校验 Bearer JWT 并将 userID、email 写入上下文。
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	secret := []byte(jwtSecret)
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := auth.ParseToken(strings.TrimSpace(parts[1]), secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(auth.ContextUserID, claims.Subject)
		c.Set(auth.ContextEmail, claims.Email)
		c.Next()
	}
}

// SharedSecret 要求请求携带 `Authorization: Bearer <secret>`，secret 为空时不校验。
func SharedSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		authHeader := c.GetHeader("Authorization")
		if subtle.ConstantTimeCompare([]byte(authHeader), []byte("Bearer "+secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
