package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.ObserveRequest("processar", "ok")
	m.ObserveRequest("processar", "ok")
	m.ObserveRequest("processar", "upstream_timeout")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("processar", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("processar", "upstream_timeout")))
}

func TestWorkspaceGauge(t *testing.T) {
	m := New()
	m.WorkspaceAcquired()
	m.WorkspaceAcquired()
	m.WorkspaceReleased()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeWorkspaces))
}

func TestEncoderGauge(t *testing.T) {
	m := New()
	m.EncoderAvailable(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.encoderAvailable))
	m.EncoderAvailable(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.encoderAvailable))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("x", "ok")
		m.ObserveStage("extract", time.Now())
		m.WorkspaceAcquired()
		m.WorkspaceReleased()
		m.EncoderAvailable(true)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveStage("extract", time.Now().Add(-time.Second))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "relay_stage_duration_seconds")
	assert.Contains(t, string(body), "relay_workspaces_active")
}
