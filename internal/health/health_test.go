package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func TestLivenessHandler(t *testing.T) {
	hc := NewHealthCheck(nil, nil)
	rec := httptest.NewRecorder()
	hc.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestReadinessHandler_Ready(t *testing.T) {
	hc := NewHealthCheck(map[string]Pinger{
		"sessions": PingFunc(ok),
		"database": PingFunc(ok),
	}, nil)

	rec := httptest.NewRecorder()
	hc.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, map[string]string{"sessions": "healthy", "database": "healthy"}, resp.Checks)
	assert.True(t, hc.IsReady())
}

func TestReadinessHandler_NotReady(t *testing.T) {
	hc := NewHealthCheck(map[string]Pinger{
		"sessions": PingFunc(ok),
		"database": PingFunc(func(context.Context) error { return errors.New("connection refused") }),
	}, nil)

	rec := httptest.NewRecorder()
	hc.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "unhealthy", resp.Checks["database"])
	assert.Equal(t, "healthy", resp.Checks["sessions"])
	assert.Equal(t, "connection refused", resp.Error)
}

func TestRun_ReportsChanges(t *testing.T) {
	var healthy atomic.Bool
	var reports atomic.Int32
	hc := NewHealthCheck(map[string]Pinger{"sessions": PingFunc(ok)}, nil,
		WithInterval(10*time.Millisecond),
		WithOnChange(func(ready bool) {
			healthy.Store(ready)
			reports.Add(1)
		}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hc.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return reports.Load() >= 2 }, time.Second, 5*time.Millisecond)
	assert.True(t, healthy.Load())
	cancel()
	<-done
}
