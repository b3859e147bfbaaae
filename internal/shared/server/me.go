package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"statements-backend/internal/shared/server/middleware"
	"statements-backend/internal/shared/server/respond"
)

// registerMeRoutes attaches the /me endpoint.
func registerMeRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", meHandler)
}

// meHandler echoes the identity that will be recorded on audit events.
func meHandler(c *gin.Context) {
	actorID := middleware.ActorIDFromContext(c)
	if actorID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing identity", nil)
		return
	}

	response := gin.H{"actorId": actorID}
	if name := middleware.ActorNameFromContext(c); name != "" {
		response["name"] = name
	}
	if role := middleware.ActorRoleFromContext(c); role != "" {
		response["role"] = role
	}
	respond.JSON(c, http.StatusOK, response)
}
