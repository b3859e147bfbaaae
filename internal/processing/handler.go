package processing

import (
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"

	"statements-backend/internal/shared/apperr"
	"statements-backend/internal/shared/server/middleware"
	"statements-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches the admin queue routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/admin/queue", h.list)
	rg.POST("/admin/queue", h.enqueue)
	rg.GET("/admin/queue/counts", h.counts)
	rg.GET("/admin/queue/:documentId", h.get)
	rg.GET("/admin/queue/:documentId/history", h.history)
	rg.POST("/admin/queue/:documentId/reprocess", h.reprocess)
	rg.PUT("/admin/queue/:documentId/metadata", h.tag)
}

// RegisterWorkerRoutes attaches the worker write-back routes.
func (h *Handler) RegisterWorkerRoutes(rg *gin.RouterGroup) {
	rg.POST("/internal/queue/:documentId/start", h.start)
	rg.POST("/internal/queue/:documentId/result", h.result)
}

func (h *Handler) list(c *gin.Context) {
	f, err := ParseListFilter(c.Request.URL.Query())
	if err != nil {
		respond.FromError(c, err)
		return
	}
	page, err := h.Svc.List(c.Request.Context(), f)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, page)
}

func (h *Handler) enqueue(c *gin.Context) {
	ctx, transition := WithTransition(WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c)))
	actorID := middleware.ActorIDFromContext(c)

	var doc NewDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		respond.FromError(c, h.Svc.Reject(ctx, actorID, ActionEnqueue, doc.DocumentID, bindError(err)))
		return
	}
	c.Set(middleware.DocumentIDKey, doc.DocumentID)

	item, err := h.Svc.Enqueue(ctx, actorID, doc)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	c.Set(middleware.StatusTransitionKey, transition.String())
	respond.Created(c, item)
}

func (h *Handler) counts(c *gin.Context) {
	counts, err := h.Svc.CountsByStatus(c.Request.Context())
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, counts)
}

func (h *Handler) get(c *gin.Context) {
	documentID := c.Param("documentId")
	c.Set(middleware.DocumentIDKey, documentID)

	item, err := h.Svc.Get(c.Request.Context(), documentID)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, item)
}

func (h *Handler) history(c *gin.Context) {
	documentID := c.Param("documentId")
	c.Set(middleware.DocumentIDKey, documentID)

	entries, err := h.Svc.History(c.Request.Context(), documentID)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, gin.H{"documentId": documentID, "entries": entries})
}

func (h *Handler) reprocess(c *gin.Context) {
	documentID := c.Param("documentId")
	c.Set(middleware.DocumentIDKey, documentID)

	ctx, transition := WithTransition(WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c)))
	item, err := h.Svc.Reprocess(ctx, middleware.ActorIDFromContext(c), documentID)
	c.Set(middleware.StatusTransitionKey, transition.String())
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.Accepted(c, item)
}

type tagRequest struct {
	Metadata Metadata `json:"metadata"`
}

func (h *Handler) tag(c *gin.Context) {
	documentID := c.Param("documentId")
	c.Set(middleware.DocumentIDKey, documentID)

	ctx := c.Request.Context()
	actorID := middleware.ActorIDFromContext(c)

	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.FromError(c, h.Svc.Reject(ctx, actorID, ActionTag, documentID, bindError(err)))
		return
	}
	item, err := h.Svc.ManuallyTag(ctx, actorID, documentID, req.Metadata)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, item)
}

type startRequest struct {
	ModelVersion string `json:"modelVersion"`
}

func (h *Handler) start(c *gin.Context) {
	documentID := c.Param("documentId")
	c.Set(middleware.DocumentIDKey, documentID)

	ctx, transition := WithTransition(c.Request.Context())
	actorID := middleware.ActorIDFromContext(c)

	var req startRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond.FromError(c, h.Svc.Reject(ctx, actorID, ActionStart, documentID, bindError(err)))
			return
		}
	}
	item, err := h.Svc.MarkProcessing(ctx, actorID, documentID, req.ModelVersion)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	c.Set(middleware.StatusTransitionKey, transition.String())
	respond.OK(c, item)
}

type resultRequest struct {
	Attempt                int             `json:"attempt"`
	Status                 string          `json:"status"`
	ModelVersion           string          `json:"modelVersion"`
	DurationSeconds        *float64        `json:"durationSeconds"`
	ErrorMessage           string          `json:"errorMessage"`
	ExtractedResultPayload json.RawMessage `json:"extractedResultPayload"`
}

func (h *Handler) result(c *gin.Context) {
	documentID := c.Param("documentId")
	c.Set(middleware.DocumentIDKey, documentID)

	ctx, transition := WithTransition(c.Request.Context())
	actorID := middleware.ActorIDFromContext(c)

	var req resultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.FromError(c, h.Svc.Reject(ctx, actorID, ActionResult, documentID, bindError(err)))
		return
	}
	// ApplyResult validates the status so that unknown values are audited.
	item, err := h.Svc.ApplyResult(ctx, actorID, WorkerResult{
		DocumentID:      documentID,
		Attempt:         req.Attempt,
		Status:          NormalizeStatus(req.Status),
		ModelVersion:    req.ModelVersion,
		DurationSeconds: req.DurationSeconds,
		ErrorMessage:    req.ErrorMessage,
		PayloadBytes:    len(req.ExtractedResultPayload),
	})
	if err != nil {
		respond.FromError(c, err)
		return
	}
	c.Set(middleware.StatusTransitionKey, transition.String())
	respond.OK(c, item)
}

// bindError keeps metadata validation messages and flattens other decode errors.
func bindError(err error) error {
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return apperr.Validation("body", "invalid request body")
}
