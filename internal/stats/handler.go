package stats

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"statements-backend/internal/shared/apperr"
	"statements-backend/internal/shared/server/respond"
)

const defaultSeriesDays = 7

// Handler exposes dashboard metrics.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches the metrics routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/admin/metrics", h.series)
	rg.GET("/admin/metrics/today", h.today)
}

func (h *Handler) series(c *gin.Context) {
	to := h.Svc.now()
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			respond.FromError(c, apperr.Validation("to", "must be YYYY-MM-DD"))
			return
		}
		to = parsed
	}
	from := to.AddDate(0, 0, -(defaultSeriesDays - 1))
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		parsed, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			respond.FromError(c, apperr.Validation("from", "must be YYYY-MM-DD"))
			return
		}
		from = parsed
	}

	snaps, err := h.Svc.Series(c.Request.Context(), from, to)
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, gin.H{"from": DayKey(from), "to": DayKey(to), "days": snaps})
}

func (h *Handler) today(c *gin.Context) {
	snap, err := h.Svc.Today(c.Request.Context())
	if err != nil {
		respond.FromError(c, err)
		return
	}
	respond.OK(c, snap)
}
