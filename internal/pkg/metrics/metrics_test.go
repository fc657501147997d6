package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExporter() *Exporter {
	cfg := DefaultConfig()
	cfg.RuntimeCollectors = false
	return New(cfg)
}

func TestExporterRecords(t *testing.T) {
	e := newTestExporter()

	e.RecordSummarize("balanced", "miss", false, 120*time.Millisecond)
	e.RecordSummarize("balanced", "hit", true, time.Millisecond)
	e.RecordSummarize("balanced", "hit", true, time.Millisecond)
	e.RecordCache("get", "hit")
	e.RecordExternal("openai", "ok", time.Second)
	e.RecordPersistenceFault("history_write")
	e.RecordDebit()
	e.RecordInflightShared()

	assert.Equal(t, 2.0, testutil.ToFloat64(e.summarizeRequests.WithLabelValues("balanced", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.summarizeRequests.WithLabelValues("balanced", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.persistenceFaults.WithLabelValues("history_write")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.creditsDebited))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.inflightShared))
}

func TestNilExporterIsNoop(t *testing.T) {
	var e *Exporter
	assert.NotPanics(t, func() {
		e.RecordSummarize("concise", "hit", true, time.Millisecond)
		e.RecordCache("put", "error")
		e.RecordExternal("gemini", "timeout", time.Second)
		e.RecordPersistenceFault("cache_write")
		e.RecordDebit()
		e.RecordInflightShared()
	})
}

func TestHandlerAndMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	e := newTestExporter()

	r := gin.New()
	r.Use(e.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(e.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `briefly_http_requests_total{method="GET",route="/ping",status="200"} 1`)
}
