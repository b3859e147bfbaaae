package feedback

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"statements-backend/internal/shared/apperr"
	"statements-backend/internal/shared/pagination"
	"statements-backend/internal/shared/server/middleware"
	"statements-backend/internal/shared/server/respond"
	"statements-backend/internal/training"
)

// Handler exposes feedback, training and improvement routes.
type Handler struct {
	Ctrl *Controller
}

// NewHandler constructs a Handler.
func NewHandler(ctrl *Controller) *Handler {
	return &Handler{Ctrl: ctrl}
}

// RegisterRoutes attaches the feedback loop routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/admin/feedback", h.listFeedback)
	rg.POST("/admin/feedback", h.recordFeedback)
	rg.GET("/admin/feedback/trends", h.trends)
	rg.GET("/admin/feedback/:id", h.getFeedback)
	rg.POST("/admin/feedback/:id/review", h.review)

	rg.GET("/admin/training", h.listExamples)
	rg.POST("/admin/training", h.createExample)
	rg.GET("/admin/training/export", h.exportDataset)
	rg.POST("/admin/training/export", h.writeDataset)
	rg.PUT("/admin/training/:id/verify", h.verifyExample)
	rg.DELETE("/admin/training/:id", h.deleteExample)

	rg.GET("/admin/models/improvements", h.listImprovements)
	rg.POST("/admin/models/improvements", h.recordImprovement)
}

func (h *Handler) recordFeedback(c *gin.Context) {
	var in NewFeedback
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.FromError(c, invalidBody())
		return
	}
	f, err := h.Ctrl.RecordFeedback(c.Request.Context(), middleware.ActorIDFromContext(c), in)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.Created(c, f)
}

func (h *Handler) listFeedback(c *gin.Context) {
	reviewed, err := optionalBool(c, "reviewed")
	if err != nil {
		respond.FromError(c, err)
		return
	}
	page, err := pagination.Parse(c.Query("limit"), c.Query("offset"))
	if err != nil {
		respond.FromError(c, err)
		return
	}
	res, err := h.Ctrl.ListFeedback(c.Request.Context(), reviewed, page)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, res)
}

func (h *Handler) getFeedback(c *gin.Context) {
	f, err := h.Ctrl.GetFeedback(c.Request.Context(), c.Param("id"))
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, f)
}

func (h *Handler) review(c *gin.Context) {
	var req ReviewRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.FromError(c, invalidBody())
			return
		}
	}
	res, err := h.Ctrl.ReviewFeedback(c.Request.Context(), middleware.ActorIDFromContext(c), c.Param("id"), req)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, res)
}

func (h *Handler) trends(c *gin.Context) {
	window := 0
	if raw := strings.TrimSpace(c.Query("windowDays")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respond.FromError(c, apperr.Validation("windowDays", "must be a positive integer"))
			return
		}
		window = n
	}
	points, err := h.Ctrl.GetTrends(c.Request.Context(), window)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, gin.H{"points": points})
}

func (h *Handler) listExamples(c *gin.Context) {
	verified, err := optionalBool(c, "verified")
	if err != nil {
		respond.FromError(c, err)
		return
	}
	page, err := pagination.Parse(c.Query("limit"), c.Query("offset"))
	if err != nil {
		respond.FromError(c, err)
		return
	}
	res, err := h.Ctrl.ListTrainingExamples(c.Request.Context(), verified, page)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, res)
}

func (h *Handler) createExample(c *gin.Context) {
	var in training.NewExample
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.FromError(c, invalidBody())
		return
	}
	ex, err := h.Ctrl.CreateTrainingExample(c.Request.Context(), middleware.ActorIDFromContext(c), in)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.Created(c, ex)
}

type verifyRequest struct {
	Verified *bool `json:"verified"`
}

func (h *Handler) verifyExample(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.FromError(c, invalidBody())
		return
	}
	if req.Verified == nil {
		respond.FromError(c, apperr.Validation("verified", "is required"))
		return
	}
	ex, err := h.Ctrl.VerifyTrainingExample(c.Request.Context(), middleware.ActorIDFromContext(c), c.Param("id"), *req.Verified)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, ex)
}

func (h *Handler) deleteExample(c *gin.Context) {
	if err := h.Ctrl.DeleteTrainingExample(c.Request.Context(), middleware.ActorIDFromContext(c), c.Param("id")); err != nil {
		respond.FromError(c, err)
		return
	}
	respond.NoContent(c)
}

func (h *Handler) exportDataset(c *gin.Context) {
	examples, err := h.Ctrl.ExportVerifiedDataset(c.Request.Context())
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, gin.H{"items": examples, "count": len(examples)})
}

type exportRequest struct {
	Name string `json:"name"`
}

func (h *Handler) writeDataset(c *gin.Context) {
	var req exportRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.FromError(c, invalidBody())
			return
		}
	}
	exp, err := h.Ctrl.WriteDatasetExport(c.Request.Context(), middleware.ActorIDFromContext(c), req.Name)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.Created(c, exp)
}

func (h *Handler) listImprovements(c *gin.Context) {
	views, err := h.Ctrl.ListImprovements(c.Request.Context(), c.Query("modelVersion"))
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.Items(c, views)
}

func (h *Handler) recordImprovement(c *gin.Context) {
	var in NewImprovement
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.FromError(c, invalidBody())
		return
	}
	view, err := h.Ctrl.RecordImprovement(c.Request.Context(), middleware.ActorIDFromContext(c), in)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.Created(c, view)
}

func optionalBool(c *gin.Context, field string) (*bool, error) {
	raw := strings.TrimSpace(c.Query(field))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.Validation(field, "must be true or false")
	}
	return &v, nil
}

func invalidBody() error {
	return apperr.Validation("body", "invalid request body")
}
