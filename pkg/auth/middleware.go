package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/assethub/assethub/pkg/contextkeys"
	"github.com/assethub/assethub/pkg/httputil"
	"github.com/assethub/assethub/pkg/observability"
)

const genericAuthFailure = "authentication required"

// Authenticator is the request gate: it builds an Identity per request and is
// the only place authentication failures become HTTP-visible. Lower layers
// signal failure with the error taxonomy in errors.go.
type Authenticator struct {
	resolver *TokenResolver
	store    *PolicyStore
	cfg      Config
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewAuthenticator wires the resolver and policy store into a request gate.
// metrics may be nil.
func NewAuthenticator(resolver *TokenResolver, store *PolicyStore, cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Authenticator {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Authenticator{
		resolver: resolver,
		store:    store,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// Identity resolves the Authorization header value into a ready Identity.
func (a *Authenticator) Identity(ctx context.Context, authorization string) (*Identity, error) {
	claims, err := a.resolver.Resolve(ctx, authorization)
	if err != nil {
		return nil, err
	}
	return NewIdentity(claims, a.store, a.cfg)
}

// Require rejects the request with 401 unless a valid, enabled Identity can
// be constructed. AccessDisabledError is reported identically to an
// authentication failure so callers cannot probe for usernames.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, err := a.Identity(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			a.recordFailure(r, err)
			message := genericAuthFailure
			if a.cfg.VerboseErrors {
				message = err.Error()
			}
			httputil.WriteUnauthorized(w, message)
			return
		}
		if a.metrics != nil {
			a.metrics.IdentityBuilds.WithLabelValues("required", "ok").Inc()
		}

		ctx := contextkeys.WithIdentity(r.Context(), ident)
		ctx = contextkeys.WithUserID(ctx, ident.Username())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Optional builds an Identity when possible and otherwise lets the request
// proceed anonymously with reduced visibility. Failure here is not an error.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, err := a.Identity(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			if a.metrics != nil {
				a.metrics.IdentityBuilds.WithLabelValues("optional", "anonymous").Inc()
			}
			next.ServeHTTP(w, r)
			return
		}
		if a.metrics != nil {
			a.metrics.IdentityBuilds.WithLabelValues("optional", "ok").Inc()
		}

		ctx := contextkeys.WithIdentity(r.Context(), ident)
		ctx = contextkeys.WithUserID(ctx, ident.Username())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) recordFailure(r *http.Request, err error) {
	reason := "invalid_token"
	var disabled *AccessDisabledError
	var authn *AuthenticationError
	switch {
	case errors.As(err, &disabled):
		reason = "access_disabled"
	case errors.As(err, &authn):
		if authn.Reason == "missing bearer token" {
			reason = "missing_token"
		}
	default:
		reason = "internal"
	}

	if a.metrics != nil {
		a.metrics.AuthFailuresTotal.WithLabelValues(reason).Inc()
		a.metrics.IdentityBuilds.WithLabelValues("required", "denied").Inc()
	}
	observability.FromContext(r.Context()).
		WithError(err).
		WithField("path", r.URL.Path).
		Warn("authentication rejected")
}

// IdentityFromContext returns the request Identity, or nil when the request
// is anonymous.
func IdentityFromContext(ctx context.Context) *Identity {
	ident, ok := ctx.Value(contextkeys.IdentityKey).(*Identity)
	if !ok {
		return nil
	}
	return ident
}

// IdentityFromRequest is a convenience wrapper over IdentityFromContext.
func IdentityFromRequest(r *http.Request) *Identity {
	return IdentityFromContext(r.Context())
}
