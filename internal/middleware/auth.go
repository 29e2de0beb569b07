package middleware

import (
	"errors"
	"net/http"
	"strings"

	"ultichat/internal/repository"
	"ultichat/internal/service"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const (
	ContextKeyUserID = "user_id"
	ContextKeyEmail  = "email"
)

// JWTAuthMiddleware validates the bearer token and records it in the auth
// session store. Store failures are logged and never reject the request.
func JWTAuthMiddleware(jwtService *service.JWTService, sessions repository.AuthSessionRepositoryInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing authorization header"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			c.Abort()
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, service.ErrExpiredToken) {
				msg = "Token expired"
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": msg})
			c.Abort()
			return
		}

		if sessions != nil {
			touchAuthSession(c, sessions, tokenString, claims.UserID)
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyEmail, claims.Email)
		c.Next()
	}
}

func touchAuthSession(c *gin.Context, sessions repository.AuthSessionRepositoryInterface, token, userID string) {
	ctx := c.Request.Context()
	err := sessions.Touch(ctx, token)
	if errors.Is(err, repository.ErrAuthSessionNotFound) {
		err = sessions.Upsert(ctx, token, userID)
	}
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("auth: session touch failed")
	}
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get(ContextKeyUserID)
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}
