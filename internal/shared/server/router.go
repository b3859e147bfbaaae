package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"statements-backend/internal/services/health"
	"statements-backend/internal/shared/config"
	"statements-backend/internal/shared/metrics"
	"statements-backend/internal/shared/server/middleware"
	"statements-backend/internal/shared/server/respond"
)

// Routes is implemented by every domain handler.
type Routes interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// WorkerRoutes is implemented by handlers that accept worker write-backs.
type WorkerRoutes interface {
	RegisterWorkerRoutes(rg *gin.RouterGroup)
}

// RouterDeps carries the handlers mounted under /api/v1.
type RouterDeps struct {
	Config          config.Config
	Health          *health.Service
	QueueHandler    Routes
	BatchHandler    Routes
	StatsHandler    Routes
	ModelHandler    Routes
	FeedbackHandler Routes
}

const (
	rateGroupRead  = "READ"
	rateGroupWrite = "WRITE"
	rateGroupBatch = "BATCH"
)

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(deps.Config.Env),
		middleware.RateLimit(rateLimitConfig(deps.Config)),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	if deps.Health != nil {
		api.GET("/health/ready", func(c *gin.Context) {
			report := deps.Health.Status(c.Request.Context())
			status := http.StatusOK
			if !report.OK {
				status = http.StatusServiceUnavailable
			}
			respond.JSON(c, status, report)
		})
	}
	registerMeRoutes(api)

	for _, h := range []Routes{
		deps.QueueHandler,
		deps.BatchHandler,
		deps.StatsHandler,
		deps.ModelHandler,
		deps.FeedbackHandler,
	} {
		if h != nil {
			h.RegisterRoutes(api)
		}
	}
	if w, ok := deps.QueueHandler.(WorkerRoutes); ok {
		w.RegisterWorkerRoutes(api)
	}

	return r
}

// rateLimitConfig gives reads twice the configured budget and batch calls a
// fifth of it; worker write-backs are not limited.
func rateLimitConfig(cfg config.Config) middleware.RateLimitConfig {
	rps := cfg.RateLimitRPS
	burst := cfg.RateLimitBurst
	return middleware.RateLimitConfig{
		DefaultGroup: rateGroupWrite,
		GroupFor:     rateGroupFor,
		Rules: map[string]middleware.RateLimitRule{
			rateGroupRead:  {Rate: rps * 2, Burst: burst * 2},
			rateGroupWrite: {Rate: rps, Burst: burst},
			rateGroupBatch: {Rate: rps / 5, Burst: max(1, burst/5)},
		},
	}
}

func rateGroupFor(c *gin.Context) string {
	path := c.FullPath()
	switch {
	case path == "" || strings.HasPrefix(path, "/api/v1/internal/"):
		return "NONE"
	case strings.HasSuffix(path, "/admin/queue/batch"):
		return rateGroupBatch
	case c.Request.Method == http.MethodGet || c.Request.Method == http.MethodOptions:
		return rateGroupRead
	default:
		return rateGroupWrite
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
