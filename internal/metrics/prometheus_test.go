package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/devrev/hvac-voice-agent/internal/dialog"
)

func TestNewMetrics_Singleton(t *testing.T) {
	assert.Same(t, NewMetrics(), NewMetrics())
}

func TestObserver(t *testing.T) {
	m := NewMetrics()
	var _ dialog.Observer = m

	before := testutil.ToFloat64(m.transitionsTotal.WithLabelValues("collect_name", "collect_phone"))
	m.Transition(dialog.StateCollectName, dialog.StateCollectPhone)
	assert.Equal(t, before+1, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("collect_name", "collect_phone")))

	before = testutil.ToFloat64(m.callOutcomes.WithLabelValues("booked"))
	m.Finished(dialog.OutcomeBooked)
	assert.Equal(t, before+1, testutil.ToFloat64(m.callOutcomes.WithLabelValues("booked")))

	before = testutil.ToFloat64(m.extractionsTotal.WithLabelValues("openai", "error"))
	m.Extraction("openai", errors.New("timeout"))
	assert.Equal(t, before+1, testutil.ToFloat64(m.extractionsTotal.WithLabelValues("openai", "error")))
}

func TestCacheLookup(t *testing.T) {
	m := NewMetrics()
	hits := testutil.ToFloat64(m.audioCacheLookups.WithLabelValues("hit"))
	misses := testutil.ToFloat64(m.audioCacheLookups.WithLabelValues("miss"))

	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)

	assert.Equal(t, hits+1, testutil.ToFloat64(m.audioCacheLookups.WithLabelValues("hit")))
	assert.Equal(t, misses+2, testutil.ToFloat64(m.audioCacheLookups.WithLabelValues("miss")))
}

func TestSetHealthStatus(t *testing.T) {
	m := NewMetrics()
	m.SetHealthStatus(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.healthStatus))
	m.SetHealthStatus(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.healthStatus))
}

func TestMetricsMiddleware_UsesRouteTemplate(t *testing.T) {
	m := NewMetrics()
	router := mux.NewRouter()
	router.Use(MetricsMiddleware(m))
	router.HandleFunc("/v1/calls/{sid}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	counter := m.requestsTotal.WithLabelValues(http.MethodGet, "/v1/calls/{sid}", "404")
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/calls/CA123", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.requestsInFlight))
}

func TestRecordTurn(t *testing.T) {
	m := NewMetrics()
	before := testutil.ToFloat64(m.turnsTotal.WithLabelValues("confirm"))
	m.RecordTurn("confirm", 120*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(m.turnsTotal.WithLabelValues("confirm")))
}
