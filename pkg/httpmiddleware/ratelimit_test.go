package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestLimiter(max int, window time.Duration) (*Limiter, *clock) {
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter(max, window)
	l.now = c.now
	return l, c
}

func request(remote string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/variations", nil)
	req.RemoteAddr = remote
	return req
}

func TestRateLimit_RejectsAboveLimit(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)
	h := RateLimit(l, nil)(okHandler())

	for i := range 3 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, request("10.0.0.1:5000"))
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request("10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	var body errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, http.StatusTooManyRequests, body.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, request("10.0.0.2:5000"))
	assert.Equal(t, http.StatusOK, w.Code, "other clients unaffected")
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l, c := newTestLimiter(4, time.Minute)

	for range 4 {
		ok, _, _ := l.Allow("k")
		require.True(t, ok)
	}
	ok, _, _ := l.Allow("k")
	require.False(t, ok)

	// A quarter into the next window three quarters of the previous count
	// still applies: 4*0.75 = 3 used, one left.
	c.t = c.t.Add(75 * time.Second)
	ok, remaining, _ := l.Allow("k")
	assert.True(t, ok)
	assert.Equal(t, 0, remaining)
	ok, _, _ = l.Allow("k")
	assert.False(t, ok)

	// Two windows later the history is gone.
	c.t = c.t.Add(2 * time.Minute)
	ok, remaining, _ = l.Allow("k")
	assert.True(t, ok)
	assert.Equal(t, 3, remaining)
}

func TestRateLimit_Disabled(t *testing.T) {
	l, _ := newTestLimiter(0, time.Minute)
	h := RateLimit(l, nil)(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request("10.0.0.1:5000"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_CustomKey(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	h := RateLimit(l, func(r *http.Request) string { return r.Header.Get("X-Phone") })(okHandler())

	for _, phone := range []string{"a", "b"} {
		req := request("10.0.0.1:5000")
		req.Header.Set("X-Phone", phone)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded for", headers: map[string]string{"X-Forwarded-For": " 1.1.1.1 , 2.2.2.2"}, remote: "9.9.9.9:1", want: "1.1.1.1"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "3.3.3.3"}, remote: "9.9.9.9:1", want: "3.3.3.3"},
		{name: "remote addr", remote: "9.9.9.9:1", want: "9.9.9.9"},
		{name: "remote without port", remote: "9.9.9.9", want: "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request(tt.remote)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
