package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// fakeProvider serves an OIDC discovery document and a JWKS endpoint backed
// by a generated RSA key.
type fakeProvider struct {
	key      *rsa.PrivateKey
	kid      string
	server   *httptest.Server
	jwksHits int32
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}

	p := &fakeProvider{key: key, kid: "key-1"}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"jwks_uri": p.server.URL + "/keys",
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&p.jwksHits, 1)
		pub := p.key.Public().(*rsa.PublicKey)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kid": p.kid,
				"kty": "RSA",
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			}},
		})
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) discoveryURL() string {
	return p.server.URL + "/.well-known/openid-configuration"
}

func (p *fakeProvider) sign(t *testing.T, claims *Claims, kid string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	raw, err := token.SignedString(p.key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return raw
}

func testClaims(username string, expiry time.Time) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
		PreferredUsername: username,
		RealmAccess:       roleSet{Roles: []string{"api_basic_access"}},
	}
}

func TestResolve_ValidToken(t *testing.T) {
	provider := newFakeProvider(t)
	resolver := NewTokenResolver(ResolverConfig{DiscoveryURL: provider.discoveryURL()}, nil, nil)

	raw := provider.sign(t, testClaims("alice", time.Now().Add(time.Hour)), provider.kid)

	claims, err := resolver.Resolve(context.Background(), "Bearer "+raw)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if claims.Username() != "alice" {
		t.Errorf("username = %q, want alice", claims.Username())
	}
	if len(claims.RealmAccess.Roles) != 1 || claims.RealmAccess.Roles[0] != "api_basic_access" {
		t.Errorf("realm roles = %v", claims.RealmAccess.Roles)
	}
}

func TestResolve_HeaderErrors(t *testing.T) {
	provider := newFakeProvider(t)
	resolver := NewTokenResolver(ResolverConfig{DiscoveryURL: provider.discoveryURL()}, nil, nil)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "wrong scheme", header: "Basic abc"},
		{name: "no token after scheme", header: "Bearer "},
		{name: "garbage token", header: "Bearer not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolver.Resolve(context.Background(), tt.header)
			var authErr *AuthenticationError
			if !errors.As(err, &authErr) {
				t.Fatalf("Resolve() error = %v, want AuthenticationError", err)
			}
		})
	}
}

func TestResolve_UnknownKid(t *testing.T) {
	provider := newFakeProvider(t)
	resolver := NewTokenResolver(ResolverConfig{DiscoveryURL: provider.discoveryURL()}, nil, nil)

	raw := provider.sign(t, testClaims("alice", time.Now().Add(time.Hour)), "no-such-kid")

	_, err := resolver.Resolve(context.Background(), "Bearer "+raw)
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("Resolve() error = %v, want AuthenticationError", err)
	}
}

func TestResolve_ExpiredToken(t *testing.T) {
	provider := newFakeProvider(t)
	resolver := NewTokenResolver(ResolverConfig{DiscoveryURL: provider.discoveryURL()}, nil, nil)

	raw := provider.sign(t, testClaims("alice", time.Now().Add(-time.Hour)), provider.kid)

	_, err := resolver.Resolve(context.Background(), "Bearer "+raw)
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("Resolve() error = %v, want AuthenticationError for expired token", err)
	}
}

func TestResolve_WrongSignature(t *testing.T) {
	provider := newFakeProvider(t)
	resolver := NewTokenResolver(ResolverConfig{DiscoveryURL: provider.discoveryURL()}, nil, nil)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, testClaims("alice", time.Now().Add(time.Hour)))
	token.Header["kid"] = provider.kid
	raw, err := token.SignedString(otherKey)
	if err != nil {
		t.Fatal(err)
	}

	_, resolveErr := resolver.Resolve(context.Background(), "Bearer "+raw)
	var authErr *AuthenticationError
	if !errors.As(resolveErr, &authErr) {
		t.Fatalf("Resolve() error = %v, want AuthenticationError for bad signature", resolveErr)
	}
}

func TestResolve_UpstreamDown(t *testing.T) {
	provider := newFakeProvider(t)
	url := provider.discoveryURL()
	provider.server.Close()

	resolver := NewTokenResolver(ResolverConfig{DiscoveryURL: url, HTTPTimeout: time.Second}, nil, nil)
	raw := provider.sign(t, testClaims("alice", time.Now().Add(time.Hour)), provider.kid)

	_, err := resolver.Resolve(context.Background(), "Bearer "+raw)
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("Resolve() error = %v, want AuthenticationError", err)
	}
	var unavailable *UpstreamUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("error chain should retain UpstreamUnavailableError, got %v", err)
	}
}

func TestResolve_JWKSCached(t *testing.T) {
	provider := newFakeProvider(t)
	resolver := NewTokenResolver(ResolverConfig{DiscoveryURL: provider.discoveryURL()}, nil, nil)

	raw := provider.sign(t, testClaims("alice", time.Now().Add(time.Hour)), provider.kid)

	for i := 0; i < 3; i++ {
		if _, err := resolver.Resolve(context.Background(), "Bearer "+raw); err != nil {
			t.Fatalf("Resolve() #%d error = %v", i, err)
		}
	}

	if hits := atomic.LoadInt32(&provider.jwksHits); hits != 1 {
		t.Errorf("JWKS fetched %d times, want 1 (cached)", hits)
	}
}

func TestResolve_KeyRotation(t *testing.T) {
	provider := newFakeProvider(t)
	resolver := NewTokenResolver(ResolverConfig{DiscoveryURL: provider.discoveryURL()}, nil, nil)

	raw := provider.sign(t, testClaims("alice", time.Now().Add(time.Hour)), provider.kid)
	if _, err := resolver.Resolve(context.Background(), "Bearer "+raw); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	// Rotate the provider key; the cached JWKS no longer matches.
	newKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	provider.key = newKey
	provider.kid = "key-2"

	rotated := provider.sign(t, testClaims("alice", time.Now().Add(time.Hour)), "key-2")
	if _, err := resolver.Resolve(context.Background(), "Bearer "+rotated); err != nil {
		t.Fatalf("Resolve() after rotation error = %v (cache should refetch on kid miss)", err)
	}

	if hits := atomic.LoadInt32(&provider.jwksHits); hits != 2 {
		t.Errorf("JWKS fetched %d times, want 2 (one refetch after rotation)", hits)
	}
}

func TestResolve_VerificationDisabled(t *testing.T) {
	resolver := NewTokenResolver(ResolverConfig{
		DiscoveryURL:        "http://localhost:0/unreachable",
		DisableVerification: true,
	}, nil, nil)

	// Self-signed with a throwaway key, no kid, no network reachable: the
	// dev escape hatch trusts the payload as-is.
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, &Claims{
		PreferredUsername: "dev",
		RealmAccess:       roleSet{Roles: []string{"api_basic_access"}},
	})
	raw, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}

	claims, resolveErr := resolver.Resolve(context.Background(), "Bearer "+raw)
	if resolveErr != nil {
		t.Fatalf("Resolve() error = %v", resolveErr)
	}
	if claims.Username() != "dev" {
		t.Errorf("username = %q, want dev", claims.Username())
	}
}

func TestResolve_ContextCancelled(t *testing.T) {
	provider := newFakeProvider(t)
	resolver := NewTokenResolver(ResolverConfig{DiscoveryURL: provider.discoveryURL()}, nil, nil)

	raw := provider.sign(t, testClaims("alice", time.Now().Add(time.Hour)), provider.kid)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := resolver.Resolve(ctx, "Bearer "+raw)
	var authErr *AuthenticationError
	if !errors.As(err, &authErr) {
		t.Fatalf("Resolve() with cancelled context error = %v, want AuthenticationError", err)
	}
}
