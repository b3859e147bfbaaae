package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statements-backend/internal/services/health"
	"statements-backend/internal/shared/config"
)

type stubRoutes struct{}

func (stubRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/admin/queue/counts", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"total": 0}) })
	rg.POST("/admin/queue/batch", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"successCount": 0}) })
}

func (stubRoutes) RegisterWorkerRoutes(rg *gin.RouterGroup) {
	rg.POST("/internal/queue/:documentId/result", func(c *gin.Context) { c.Status(http.StatusNoContent) })
}

func newTestRouter() *gin.Engine {
	return NewRouter(RouterDeps{
		Config: config.Config{
			Env:            "dev",
			RateLimitRPS:   1,
			RateLimitBurst: 5,
		},
		Health:       health.NewService(nil),
		QueueHandler: stubRoutes{},
	})
}

func serve(r http.Handler, method, path, actor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if actor != "" {
		req.Header.Set("X-Actor-Id", actor)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestRouterPublicEndpoints(t *testing.T) {
	r := newTestRouter()

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/health", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/health/ready", "").Code)

	resp := serve(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "go_goroutines")
}

func TestRouterRequiresIdentity(t *testing.T) {
	r := newTestRouter()

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/api/v1/admin/queue/counts", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/api/v1/admin/queue/counts", "admin-1").Code)

	resp := serve(r, http.MethodGet, "/api/v1/me", "admin-1")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"actorId":"admin-1"`)
}

func TestRouterBatchHasSmallerBudget(t *testing.T) {
	r := newTestRouter()

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v1/admin/queue/batch", "admin-1").Code)
	resp := serve(r, http.MethodPost, "/api/v1/admin/queue/batch", "admin-1")
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.NotEmpty(t, resp.Header().Get("Retry-After"))

	// Another actor has its own bucket.
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v1/admin/queue/batch", "admin-2").Code)
}

func TestRouterWorkerRoutesAreNotLimited(t *testing.T) {
	r := newTestRouter()

	for i := 0; i < 20; i++ {
		resp := serve(r, http.MethodPost, "/api/v1/internal/queue/doc-1/result", "extraction-worker")
		require.Equal(t, http.StatusNoContent, resp.Code, "request %d", i+1)
	}
}

func TestAddr(t *testing.T) {
	assert.Equal(t, ":8080", Addr(""))
	assert.Equal(t, ":9090", Addr("9090"))
	assert.Equal(t, ":7000", Addr(":7000"))
}
