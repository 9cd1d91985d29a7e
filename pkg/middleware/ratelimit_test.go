package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg RateLimitConfig) *RateLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRateLimiter(client, cfg, nil)
}

func TestAllow_CountsPerKey(t *testing.T) {
	rl := newTestLimiter(t, RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := rl.Allow(ctx, "user:alice")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d rejected under limit", i+1)
	}

	allowed, remaining, err := rl.Allow(ctx, "user:alice")
	require.NoError(t, err)
	assert.False(t, allowed, "third request allowed over a limit of 2")
	assert.Equal(t, 0, remaining)

	// other callers are unaffected
	allowed, _, err = rl.Allow(ctx, "user:bob")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestHandler_Returns429WithHeaders(t *testing.T) {
	rl := newTestLimiter(t, RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute})
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
	req.RemoteAddr = "10.0.0.5:50000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestHandler_FailsOpenWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	rl := NewRateLimiter(client, RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute}, nil)
	mr.Close()

	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "limiter outage must not block requests")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr", "10.1.2.3:4567", nil, "10.1.2.3"},
		{"x-forwarded-for single", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.9"}, "203.0.113.9"},
		{"x-forwarded-for chain", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.2"}, "203.0.113.9"},
		{"x-real-ip", "10.0.0.1:80", map[string]string{"X-Real-IP": "198.51.100.7"}, "198.51.100.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}

func TestReset(t *testing.T) {
	rl := newTestLimiter(t, RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute})
	ctx := context.Background()

	_, _, err := rl.Allow(ctx, "user:alice")
	require.NoError(t, err)
	allowed, _, err := rl.Allow(ctx, "user:alice")
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, rl.Reset(ctx, "user:alice"))

	allowed, _, err = rl.Allow(ctx, "user:alice")
	require.NoError(t, err)
	assert.True(t, allowed, "reset did not clear the counter")
}
