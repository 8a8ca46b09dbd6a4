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
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordEvaluation("sync", OutcomeOK, 10*time.Millisecond)
	m.RecordEvaluation("sync", OutcomeOK, 20*time.Millisecond)
	m.RecordEvaluation("async", OutcomeError, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Evaluations.WithLabelValues("sync", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evaluations.WithLabelValues("async", OutcomeError)))

	count, err := testutil.GatherAndCount(reg, "jseval_evaluations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNewMetricsSharesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewMetrics(reg)
	second := NewMetrics(reg)

	first.IncSidecars()
	second.IncSidecars()

	assert.Equal(t, 2.0, testutil.ToFloat64(first.SidecarsActive))
	second.DecSidecars()
	assert.Equal(t, 1.0, testutil.ToFloat64(first.SidecarsActive))
}

func TestSetupMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSetup(50 * time.Millisecond)
	m.RecordSetupFailure(ReasonTimeout)
	m.RecordSetupFailure(ReasonTimeout)
	m.RecordSetupFailure(ReasonSpawn)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SetupFailures.WithLabelValues(ReasonTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SetupFailures.WithLabelValues(ReasonSpawn)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SetupDuration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordEvaluation("sync", OutcomeOK, time.Second)
		m.RecordSetup(time.Second)
		m.RecordSetupFailure(ReasonSpawn)
		m.IncSidecars()
		m.DecSidecars()
		m.RecordHTTPRequest("POST", "/run", "200", time.Second, 1, 1)
		NewTimer(m, "sync").Stop(OutcomeOK)
	})
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestTimer(t *testing.T) {
	m := NewMetrics(nil)

	timer := NewTimer(m, "async")
	time.Sleep(5 * time.Millisecond)
	d := timer.Stop(OutcomeTransport)

	assert.GreaterOrEqual(t, d, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evaluations.WithLabelValues("async", OutcomeTransport)))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	router.Use(Middleware(m))
	router.POST("/run", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"result": 42})
	})
	router.GET("/fail", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/run?async=false", nil),
		httptest.NewRequest(http.MethodGet, "/fail", nil),
		httptest.NewRequest(http.MethodGet, "/missing", nil),
	} {
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "/run", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/fail", "500")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.TotalRequests)
	assert.Equal(t, int64(2), snap.TotalErrors)
	assert.Greater(t, snap.AvgDuration, 0.0)
}
