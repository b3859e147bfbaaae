package modelversions

import (
	"github.com/gin-gonic/gin"

	"statements-backend/internal/shared/apperr"
	"statements-backend/internal/shared/server/middleware"
	"statements-backend/internal/shared/server/respond"
)

// Handler exposes the registry.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches the registry routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/admin/models", h.list)
	rg.POST("/admin/models", h.register)
	rg.GET("/admin/models/active", h.active)
	rg.GET("/admin/models/:id", h.get)
	rg.POST("/admin/models/:id/activate", h.activate)
}

func (h *Handler) list(c *gin.Context) {
	versions, err := h.Svc.List(c.Request.Context())
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.Items(c, versions)
}

func (h *Handler) register(c *gin.Context) {
	var in NewModelVersion
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.FromError(c, apperr.Validation("body", "invalid request body"))
		return
	}
	mv, err := h.Svc.Register(c.Request.Context(), middleware.ActorIDFromContext(c), in)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.Created(c, mv)
}

func (h *Handler) active(c *gin.Context) {
	mv, err := h.Svc.GetActive(c.Request.Context())
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, mv)
}

func (h *Handler) get(c *gin.Context) {
	mv, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, mv)
}

func (h *Handler) activate(c *gin.Context) {
	mv, err := h.Svc.Activate(c.Request.Context(), middleware.ActorIDFromContext(c), c.Param("id"))
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, mv)
}
