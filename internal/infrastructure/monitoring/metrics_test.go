package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordDownload("downloaded", time.Second)
	m.RecordDownload("cached", 0)
	m.RecordDownload("cached", 0)
	m.RecordCacheLookup("mismatch")
	m.IncAssetRetries()
	m.AddBytes(512)
	m.AddBytes(-1)
	m.RecordBridgeRequest("getUserName", "success", time.Millisecond)
	m.SetBreakerState("platform", 2)
	m.RecordLoad("fallback")
	m.AddCollected("apps", 3)
	m.AddCollected("apps", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DownloadsTotal.WithLabelValues("downloaded")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DownloadsTotal.WithLabelValues("cached")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AssetRetries))
	assert.Equal(t, 512.0, testutil.ToFloat64(m.BytesDownloaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BridgeRequests.WithLabelValues("getUserName", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("platform")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Loads.WithLabelValues("fallback")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.GCCollected.WithLabelValues("apps")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDownload("failed", time.Second)
		m.RecordCacheLookup("hit")
		m.RecordBridgeRequest("x", "error", 0)
		m.IncWSConnections()
		m.SetBreakerState("p", 0)
		m.RecordLoad("ready")
		m.AddCollected("records", 1)
	})
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(nil)

	r := gin.New()
	r.Use(Middleware(m))
	r.GET("/v1/apps/:appId", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/apps/abc", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/v1/apps/:appId", "200")))
}
