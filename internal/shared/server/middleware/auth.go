package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"statements-backend/internal/shared/auth"
	"statements-backend/internal/shared/server/respond"
)

const (
	actorIDKey   = "actorId"
	actorNameKey = "actorName"
	actorRoleKey = "actorRole"

	actorHeader = "X-Actor-Id"
)

var publicPaths = map[string]struct{}{
	"/api/v1/health":       {},
	"/api/v1/health/ready": {},
	"/metrics":             {},
}

// Auth resolves the acting identity from a bearer JWT or, outside production,
// the X-Actor-Id header. Authorization decisions are made upstream.
func Auth(env string) gin.HandlerFunc {
	allowHeader := env != "production"
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}
		if _, ok := publicPaths[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader != "" {
			if !strings.HasPrefix(authHeader, "Bearer ") {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
			if token == "" {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}

			claims, err := auth.VerifyJWT(token)
			if err != nil {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}

			c.Set(actorIDKey, claims.Sub)
			if claims.Name != "" {
				c.Set(actorNameKey, claims.Name)
			}
			if claims.Role != "" {
				c.Set(actorRoleKey, claims.Role)
			}
			c.Next()
			return
		}

		if allowHeader {
			if actor := strings.TrimSpace(c.GetHeader(actorHeader)); actor != "" {
				c.Set(actorIDKey, actor)
				c.Next()
				return
			}
		}

		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing identity", nil)
	}
}

// ActorIDFromContext fetches the actor ID set by the auth middleware.
func ActorIDFromContext(c *gin.Context) string {
	return contextString(c, actorIDKey)
}

// ActorNameFromContext fetches the display name carried by the token, if any.
func ActorNameFromContext(c *gin.Context) string {
	return contextString(c, actorNameKey)
}

// ActorRoleFromContext fetches the role claim carried by the token, if any.
func ActorRoleFromContext(c *gin.Context) string {
	return contextString(c, actorRoleKey)
}

func contextString(c *gin.Context, key string) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(key)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}
