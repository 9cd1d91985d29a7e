package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/assethub/assethub/pkg/auth"
	"github.com/assethub/assethub/pkg/observability"
)

// RateLimitConfig describes a fixed window limit.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
}

// DefaultRateLimitConfig allows 300 requests per minute per caller.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: 300, Window: time.Minute}
}

// RateLimiter is a Redis-backed fixed-window counter shared across
// instances. It fails open: a Redis outage must not take the API down with
// it.
type RateLimiter struct {
	client *redis.Client
	cfg    RateLimitConfig
	prefix string
	logger *observability.Logger
}

func NewRateLimiter(client *redis.Client, cfg RateLimitConfig, logger *observability.Logger) *RateLimiter {
	if cfg.RequestsPerWindow <= 0 || cfg.Window <= 0 {
		cfg = DefaultRateLimitConfig()
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &RateLimiter{
		client: client,
		cfg:    cfg,
		prefix: "assethub:ratelimit",
		logger: logger,
	}
}

// Allow counts the request against the caller's window and reports whether
// it is under the limit, along with the remaining quota.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	redisKey := rl.prefix + ":" + key

	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := incr.Val()
	remaining := rl.cfg.RequestsPerWindow - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(rl.cfg.RequestsPerWindow), remaining, nil
}

// TTL reports the time until the caller's window resets.
func (rl *RateLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.client.TTL(ctx, rl.prefix+":"+key).Result()
}

// Reset clears a caller's counter.
func (rl *RateLimiter) Reset(ctx context.Context, key string) error {
	return rl.client.Del(ctx, rl.prefix+":"+key).Err()
}

// callerKey buckets authenticated requests by username and anonymous ones by
// client IP.
func callerKey(r *http.Request) string {
	if ident := auth.IdentityFromRequest(r); ident != nil {
		return "user:" + ident.Username()
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Handler enforces the limit and decorates responses with the standard
// X-RateLimit headers. It runs after the request gate so authenticated
// callers are bucketed by username.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := callerKey(r)

		allowed, remaining, err := rl.Allow(ctx, key)
		if err != nil {
			rl.logger.WithError(err).Warn("rate limiter unavailable, failing open")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.cfg.RequestsPerWindow))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		if ttl, err := rl.TTL(ctx, key); err == nil && ttl > 0 {
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(ttl).Unix()))
		}

		if !allowed {
			retryAfter := rl.cfg.Window.Seconds()
			if ttl, err := rl.TTL(ctx, key); err == nil && ttl > 0 {
				retryAfter = ttl.Seconds()
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"error":"rate limit exceeded","retry_after":%.0f}`, retryAfter)
			return
		}

		next.ServeHTTP(w, r)
	})
}
