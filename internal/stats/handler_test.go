package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerSeriesAndToday(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := NewService(staticItems(twelveItems()), NewMemorySnapshotCache())
	svc.Now = func() time.Time { return day.Add(20 * time.Hour) }
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w := get("/api/v1/admin/metrics?from=2026-05-01&to=2026-05-04")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Days []Snapshot `json:"days"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Days, 4)
	assert.Equal(t, 0.625, body.Days[3].SuccessRate)

	w = get("/api/v1/admin/metrics?from=yesterday")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = get("/api/v1/admin/metrics/today")
	require.Equal(t, http.StatusOK, w.Code)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "2026-05-04", snap.Date)
	assert.Equal(t, 12, snap.TotalCount)
}
