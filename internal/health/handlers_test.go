package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/techshop-api/internal/health"
)

func ok(context.Context) error { return nil }

func ready(t *testing.T, h health.Handler) (int, map[string]string) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.Ready(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var status map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	return rr.Code, status
}

func TestLive(t *testing.T) {
	rr := httptest.NewRecorder()
	health.Handler{}.Live(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestReadySuccess(t *testing.T) {
	code, status := ready(t, health.Handler{Probes: []health.Probe{{Name: "store", Check: ok}, {Name: "redis", Check: ok}}})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]string{"store": "ok", "redis": "ok"}, status)
}

func TestReadyReportsFailingProbe(t *testing.T) {
	h := health.Handler{Probes: []health.Probe{
		{Name: "store", Check: ok},
		{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	}}
	code, status := ready(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "connection refused", status["redis"])
	assert.Equal(t, "ok", status["store"])
}

func TestReadyProbeTimeout(t *testing.T) {
	slow := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	code, status := ready(t, health.Handler{Timeout: 10 * time.Millisecond, Probes: []health.Probe{{Name: "store", Check: slow}}})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, context.DeadlineExceeded.Error(), status["store"])
}
