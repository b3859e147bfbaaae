package batch

import (
	"errors"

	"github.com/gin-gonic/gin"

	"statements-backend/internal/processing"
	"statements-backend/internal/shared/apperr"
	"statements-backend/internal/shared/server/middleware"
	"statements-backend/internal/shared/server/respond"
)

// Handler exposes batch actions over HTTP.
type Handler struct {
	Coordinator *Coordinator
}

// NewHandler constructs a Handler.
func NewHandler(c *Coordinator) *Handler {
	return &Handler{Coordinator: c}
}

// RegisterRoutes attaches the batch route.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/admin/queue/batch", h.apply)
}

func (h *Handler) apply(c *gin.Context) {
	ctx := processing.WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	actorID := middleware.ActorIDFromContext(c)

	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		var verr *apperr.ValidationError
		if !errors.As(err, &verr) {
			verr = apperr.Validation("body", "invalid request body")
		}
		respond.FromError(c, h.Coordinator.Reject(ctx, actorID, verr))
		return
	}

	res, err := h.Coordinator.Apply(ctx, actorID, req)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, res)
}
