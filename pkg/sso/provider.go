package sso

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/assethub/assethub/pkg/observability"
)

// Config describes the OIDC provider the browser login flow talks to. It is
// the same issuer the API's token resolver trusts, so tokens minted here are
// accepted as bearer tokens on the API surface.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// IssuerFromDiscoveryURL strips the well-known suffix so the resolver's
// discovery URL and the SSO issuer can share one config value.
func IssuerFromDiscoveryURL(discoveryURL string) string {
	return strings.TrimSuffix(discoveryURL, "/.well-known/openid-configuration")
}

// UserInfo is the identity summary handed back to the browser after login.
type UserInfo struct {
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	FullName string   `json:"full_name,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// LoginResult carries the token the browser will use as a bearer token plus
// the verified identity behind it.
type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	User        UserInfo
}

// Provider wraps OIDC discovery, the authorization-code exchange, and ID
// token verification for the configured issuer.
type Provider struct {
	cfg           Config
	verifier      *oidc.IDTokenVerifier
	oauth2Config  *oauth2.Config
	endSessionURL string
	logger        *observability.Logger
}

// NewProvider discovers the issuer's endpoints. It fails fast on an
// unreachable or misconfigured issuer.
func NewProvider(ctx context.Context, cfg Config, logger *observability.Logger) (*Provider, error) {
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("redirect URL is required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	// end_session_endpoint is optional in discovery documents.
	var extra struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	_ = provider.Claims(&extra)

	return &Provider{
		cfg:      cfg,
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
		endSessionURL: extra.EndSessionEndpoint,
		logger:        logger,
	}, nil
}

// AuthCodeURL builds the authorization redirect for a login attempt.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

type idTokenClaims struct {
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	RealmAccess       struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

// Exchange trades the authorization code for tokens and verifies the ID
// token against the issuer's signing keys.
func (p *Provider) Exchange(ctx context.Context, code string) (*LoginResult, error) {
	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("token response is missing id_token")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}

	username := claims.PreferredUsername
	if username == "" {
		username = claims.Email
	}
	if username == "" {
		username = idToken.Subject
	}

	return &LoginResult{
		AccessToken: token.AccessToken,
		ExpiresAt:   token.Expiry,
		User: UserInfo{
			Username: username,
			Email:    claims.Email,
			FullName: claims.Name,
			Roles:    claims.RealmAccess.Roles,
		},
	}, nil
}

// EndSessionURL builds the RP-initiated logout redirect, or returns "" when
// the issuer does not advertise one.
func (p *Provider) EndSessionURL(redirectTo string) string {
	if p.endSessionURL == "" {
		return ""
	}
	if redirectTo == "" {
		return p.endSessionURL
	}
	return p.endSessionURL + "?post_logout_redirect_uri=" + url.QueryEscape(redirectTo)
}
