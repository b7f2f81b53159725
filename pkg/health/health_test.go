package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"
)

func probeStatus(t *testing.T, endpoint http.HandlerFunc) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	endpoint(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	return rec.Code, rec.Body.String()
}

func TestLiveEndpoint_NoChecks(t *testing.T) {
	h := New()
	code, body := probeStatus(t, h.LiveEndpoint)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"status": "ok"}`, body)
}

func TestReadyEndpoint_NotReadyUntilSet(t *testing.T) {
	h := New()

	code, body := probeStatus(t, h.ReadyEndpoint)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Contains(t, body, "service is not ready")

	h.SetReady(true)
	code, _ = probeStatus(t, h.ReadyEndpoint)
	require.Equal(t, http.StatusOK, code)
	require.True(t, h.IsReady())

	h.SetReady(false)
	require.False(t, h.IsReady())
}

func TestProbe_FailureThreshold(t *testing.T) {
	p := &probe{name: "db", timeout: time.Second, check: func(context.Context) error {
		return errors.New("connection refused")
	}}

	p.run(context.Background())
	p.run(context.Background())
	require.Empty(t, p.failure())

	p.run(context.Background())
	require.Equal(t, "connection refused", p.failure())

	// A single success resets the streak.
	p.check = func(context.Context) error { return nil }
	p.run(context.Background())
	require.Empty(t, p.failure())
}

func TestReadyEndpoint_FailingCheck(t *testing.T) {
	h := New()
	h.SetReady(true)
	h.AddReadinessCheck("db", time.Second, func(context.Context) error {
		return errors.New("down")
	})

	for _, p := range h.readiness {
		for i := 0; i < failureThreshold; i++ {
			p.run(context.Background())
		}
	}

	code, body := probeStatus(t, h.ReadyEndpoint)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Contains(t, body, `"db"`)
	require.False(t, h.IsReady())
}

func TestStart_RunsChecks(t *testing.T) {
	h := New()
	ran := make(chan struct{}, 1)
	h.AddLivenessCheck("ping", time.Second, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})

	h.Start(context.Background(), 50*time.Millisecond)
	defer h.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("check never ran")
	}
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	require.Error(t, GoroutineCountCheck(0)(context.Background()))
}
