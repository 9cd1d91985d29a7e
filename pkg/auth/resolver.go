package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/assethub/assethub/pkg/observability"
)

const (
	defaultHTTPTimeout   = 10 * time.Second
	defaultJWKSCacheTTL  = 24 * time.Hour
	defaultJWKSCacheSize = 128
)

var acceptedSigningMethods = []string{"RS256", "RS384", "RS512"}

// ResolverConfig configures the token resolver.
type ResolverConfig struct {
	// DiscoveryURL is the OIDC discovery endpoint exposing jwks_uri.
	DiscoveryURL string

	// DisableVerification skips signature and expiry checks entirely and
	// trusts the token payload as-is. Local development only; config
	// validation refuses it under a production profile.
	DisableVerification bool

	HTTPTimeout   time.Duration
	JWKSCacheTTL  time.Duration
	JWKSCacheSize int
}

// TokenResolver turns a raw Authorization header into verified Claims.
// The discovery/JWKS documents are cached per discovery URL; concurrent
// cold-cache misses are collapsed into a single fetch.
type TokenResolver struct {
	cfg     ResolverConfig
	client  *http.Client
	cache   *lru.LRU[string, *keySet]
	group   singleflight.Group
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewTokenResolver creates a token resolver. metrics may be nil.
func NewTokenResolver(cfg ResolverConfig, logger *observability.Logger, metrics *observability.Metrics) *TokenResolver {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.JWKSCacheTTL <= 0 {
		cfg.JWKSCacheTTL = defaultJWKSCacheTTL
	}
	if cfg.JWKSCacheSize < defaultJWKSCacheSize {
		cfg.JWKSCacheSize = defaultJWKSCacheSize
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	return &TokenResolver{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
		cache:   lru.NewLRU[string, *keySet](cfg.JWKSCacheSize, nil, cfg.JWKSCacheTTL),
		logger:  logger,
		metrics: metrics,
	}
}

// Resolve validates the Authorization header value and returns the decoded
// Claims. Every failure is an *AuthenticationError; a missing header is never
// treated as an anonymous success.
func (tr *TokenResolver) Resolve(ctx context.Context, authorization string) (*Claims, error) {
	raw, err := bearerToken(authorization)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}

	if tr.cfg.DisableVerification {
		if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
			return nil, &AuthenticationError{Reason: "malformed token", Err: err}
		}
		return claims, nil
	}

	_, err = jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("token header has no kid")
		}
		return tr.signingKey(ctx, kid)
	}, jwt.WithValidMethods(acceptedSigningMethods))

	if err != nil {
		var unavailable *UpstreamUnavailableError
		if errors.As(err, &unavailable) {
			// Full detail stays server-side; the boundary sees a plain
			// authentication failure.
			tr.logger.WithError(unavailable).Warn("token verification unavailable")
			return nil, &AuthenticationError{Reason: "identity provider unavailable", Err: err}
		}
		return nil, &AuthenticationError{Reason: "token verification failed", Err: err}
	}

	return claims, nil
}

// bearerToken strips the Bearer prefix from the Authorization header value.
func bearerToken(authorization string) (string, error) {
	if authorization == "" {
		return "", &AuthenticationError{Reason: "missing bearer token"}
	}
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", &AuthenticationError{Reason: "invalid authorization header format"}
	}
	return parts[1], nil
}

// signingKey returns the RSA public key matching kid from the cached JWKS.
// On a kid miss the cache entry is dropped and fetched once more, so key
// rotation at the provider does not require waiting out the TTL.
func (tr *TokenResolver) signingKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	keys, err := tr.keySet(ctx)
	if err != nil {
		return nil, err
	}
	if key, ok := keys.byID[kid]; ok {
		return key, nil
	}

	tr.cache.Remove(tr.cfg.DiscoveryURL)
	keys, err = tr.keySet(ctx)
	if err != nil {
		return nil, err
	}
	if key, ok := keys.byID[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("no JWKS key matches kid %q", kid)
}

// keySet returns the cached key set, fetching it on a miss. Concurrent misses
// share one fetch via singleflight; a caller whose context is cancelled stops
// waiting while the fetch finishes in the background and fills the cache.
func (tr *TokenResolver) keySet(ctx context.Context) (*keySet, error) {
	if keys, ok := tr.cache.Get(tr.cfg.DiscoveryURL); ok {
		if tr.metrics != nil {
			tr.metrics.JWKSCacheHitsTotal.Inc()
		}
		return keys, nil
	}
	if tr.metrics != nil {
		tr.metrics.JWKSCacheMissTotal.Inc()
	}

	ch := tr.group.DoChan(tr.cfg.DiscoveryURL, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.Background(), tr.cfg.HTTPTimeout)
		defer cancel()

		start := time.Now()
		keys, err := tr.fetchKeySet(fetchCtx)
		if tr.metrics != nil {
			tr.metrics.JWKSFetchDuration.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			return nil, err
		}
		tr.cache.Add(tr.cfg.DiscoveryURL, keys)
		return keys, nil
	})

	select {
	case <-ctx.Done():
		return nil, &UpstreamUnavailableError{Endpoint: tr.cfg.DiscoveryURL, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*keySet), nil
	}
}

// fetchKeySet fetches the discovery document, follows jwks_uri, and parses
// the RSA keys. No retries: a failed fetch fails the request's authentication.
func (tr *TokenResolver) fetchKeySet(ctx context.Context) (*keySet, error) {
	var discovery struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := tr.getJSON(ctx, tr.cfg.DiscoveryURL, &discovery); err != nil {
		return nil, err
	}
	if discovery.JWKSURI == "" {
		return nil, &UpstreamUnavailableError{
			Endpoint: tr.cfg.DiscoveryURL,
			Err:      fmt.Errorf("discovery document has no jwks_uri"),
		}
	}

	var jwks struct {
		Keys []jsonWebKey `json:"keys"`
	}
	if err := tr.getJSON(ctx, discovery.JWKSURI, &jwks); err != nil {
		return nil, err
	}

	keys := &keySet{byID: make(map[string]*rsa.PublicKey, len(jwks.Keys))}
	for _, jwk := range jwks.Keys {
		if jwk.Kty != "RSA" || jwk.Kid == "" {
			continue
		}
		key, err := jwk.rsaPublicKey()
		if err != nil {
			tr.logger.WithError(err).WithField("kid", jwk.Kid).Warn("skipping unparseable JWKS key")
			continue
		}
		keys.byID[jwk.Kid] = key
	}

	return keys, nil
}

func (tr *TokenResolver) getJSON(ctx context.Context, url string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &UpstreamUnavailableError{Endpoint: url, Err: err}
	}

	resp, err := tr.client.Do(req)
	if err != nil {
		return &UpstreamUnavailableError{Endpoint: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &UpstreamUnavailableError{
			Endpoint: url,
			Err:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return &UpstreamUnavailableError{Endpoint: url, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	return nil
}

// keySet is a parsed JWKS document indexed by key id.
type keySet struct {
	byID map[string]*rsa.PublicKey
}

// jsonWebKey is the subset of a JWKS entry needed for RSA-family keys.
type jsonWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k jsonWebKey) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent: %w", err)
	}

	e := new(big.Int).SetBytes(eBytes)
	if !e.IsInt64() || e.Int64() <= 0 {
		return nil, fmt.Errorf("exponent out of range")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(e.Int64()),
	}, nil
}
