package modelversions

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerRegisterActivateList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, _ := newService(t)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))

	call := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := call(http.MethodGet, "/api/v1/admin/models/active", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = call(http.MethodPost, "/api/v1/admin/models", `{"versionName":"v3","deployedAt":"2026-02-01T00:00:00Z","accuracy":0.91,"precision":0.9,"recall":0.88,"f1":0.89}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var mv ModelVersion
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mv))
	assert.Equal(t, 0.91, mv.Accuracy)

	w = call(http.MethodPost, "/api/v1/admin/models", `{"versionName":"v3"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = call(http.MethodPost, "/api/v1/admin/models/"+mv.ID+"/activate", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = call(http.MethodGet, "/api/v1/admin/models", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Items []ModelVersion `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)
	assert.True(t, list.Items[0].IsActive)
}
