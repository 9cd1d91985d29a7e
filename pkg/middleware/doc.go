// Package middleware holds HTTP middleware that needs shared backend state,
// currently a Redis-backed fixed-window rate limiter. Per-request concerns
// without backend state (request ids, logging, recovery) live in httputil.
package middleware
