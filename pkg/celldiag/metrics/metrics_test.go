package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ObserveQuestion("entities", 2*time.Millisecond)
	m.ObserveQuestion("entities", time.Millisecond)
	m.ObserveQuestion("comparison", time.Millisecond)
	m.ObserveVerdict(true, "", 0.82)
	m.ObserveVerdict(false, "no_entities", 0.2)
	m.ObserveDetection("collision")
	m.ObserveReload(nil, 42)
	m.ObserveReload(errors.New("boom"), 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Questions.WithLabelValues("entities")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verdicts.WithLabelValues(OutcomeAbstained, "no_entities")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verdicts.WithLabelValues(OutcomeAnswered, "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Detections.WithLabelValues("collision")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reloads.WithLabelValues("error")))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.SchemaEntities))
	assert.Equal(t, 2, testutil.CollectAndCount(m.Confidence))
}

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	require.Error(t, err)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveQuestion("entities", time.Millisecond)
	m.ObserveVerdict(true, "", 1)
	m.ObserveDetection("drift")
	m.ObserveReload(nil, 1)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	m.ObserveDetection("vibration")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `celldiag_pattern_detections_total{type="vibration"} 1`)
}
