package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func serve(t *testing.T, fn http.HandlerFunc) (int, status) {
	t.Helper()
	w := httptest.NewRecorder()
	fn(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var body status
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func TestReadyEndpoint(t *testing.T) {
	down := errors.New("connection refused")
	tests := []struct {
		name     string
		ready    bool
		err      error
		runs     int
		wantCode int
		wantKey  string
	}{
		{name: "ready and passing", ready: true, runs: 1, wantCode: http.StatusOK},
		{name: "not marked ready", ready: false, runs: 1, wantCode: http.StatusServiceUnavailable, wantKey: "_readiness"},
		{name: "below failure threshold", ready: true, err: down, runs: FailureThreshold - 1, wantCode: http.StatusOK},
		{name: "failing dependency", ready: true, err: down, runs: FailureThreshold, wantCode: http.StatusServiceUnavailable, wantKey: "postgres"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			h.AddReadinessCheck("postgres", time.Second, Ping(pinger{err: tt.err}))
			h.SetReady(tt.ready)
			for range tt.runs {
				h.deps[0].run(context.Background())
			}

			code, body := serve(t, h.ReadyEndpoint)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantCode == http.StatusOK, h.IsReady())
			if tt.wantKey != "" {
				assert.Equal(t, "unhealthy", body.Status)
				assert.Contains(t, body.Checks, tt.wantKey)
			}
		})
	}
}

func TestLiveEndpoint(t *testing.T) {
	h := New()
	code, body := serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)

	h.AddLivenessCheck("goroutines", time.Second, GoroutineCountCheck(0))
	for range FailureThreshold {
		h.live[0].run(context.Background())
	}
	code, body = serve(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks["goroutines"], "limit 0")
}

func TestCheckRecovers(t *testing.T) {
	fail := true
	h := New()
	h.AddReadinessCheck("redis", time.Second, func(context.Context) error {
		if fail {
			return errors.New("down")
		}
		return nil
	})
	h.SetReady(true)
	c := h.deps[0]

	for range FailureThreshold {
		c.run(context.Background())
	}
	assert.False(t, h.IsReady())

	fail = false
	c.run(context.Background())
	assert.True(t, h.IsReady())
}

func TestStartStop(t *testing.T) {
	h := New()
	ran := make(chan struct{}, 1)
	h.AddLivenessCheck("tick", time.Second, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})

	h.Start(context.Background(), 10*time.Millisecond)
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("check did not run")
	}
	h.Stop()
	h.Stop()
}
