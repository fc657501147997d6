package history

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/briefly-app/core/internal/middleware"
	"github.com/briefly-app/core/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHistoryRouter(svc *Service, user *models.UserModel) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"), func(c *gin.Context) {
		c.Set(middleware.ContextKeyUser, user)
		c.Next()
	})
	return r
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHistoryHandler(t *testing.T) {
	svc := NewService(NewGormStore(openTestDB(t)), []string{"admin", "editor"})
	user := &models.UserModel{Role: models.RoleUser}
	user.ID = "u1"
	ids := seed(t, svc, newEntry("u1", "mine", "go"), newEntry("u1", "also mine"), newEntry("u2", "theirs"))
	r := newHistoryRouter(svc, user)

	w := doRequest(r, http.MethodGet, "/api/v1/history?page=1&size=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Data       []map[string]interface{} `json:"data"`
		Pagination struct {
			Total       int  `json:"total"`
			TotalPage   int  `json:"totalPage"`
			HasNextPage bool `json:"hasNextPage"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Data, 1)
	assert.Equal(t, 2, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.TotalPage)
	assert.True(t, page.Pagination.HasNextPage)
	assert.Contains(t, page.Data[0], "reduceTime")
	assert.Contains(t, page.Data[0], "totalContentWordCount")

	w = doRequest(r, http.MethodGet, "/api/v1/history/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 2, stats.TotalSummary)
	assert.EqualValues(t, 2, stats.LastWeekSummary)
	assert.Equal(t, 4, stats.TotalSavedTime)

	w = doRequest(r, http.MethodPatch, "/api/v1/history/"+ids[0], `{"tags":["a","b"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.HistoryModel
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, models.StringArray{"a", "b"}, updated.Tags)
	assert.Equal(t, "mine", updated.Summary)

	w = doRequest(r, http.MethodPatch, "/api/v1/history/"+ids[0], `{"summary":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPatch, "/api/v1/history/"+ids[2], `{"summary":"hijack"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/history/"+ids[2], "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(r, http.MethodDelete, "/api/v1/history/"+ids[1], "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doRequest(r, http.MethodDelete, "/api/v1/history/"+ids[1], "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
