package auth

import (
	"fmt"
)

// Internal policy roles that token roles are mapped onto. The static policy
// file grants permissions to these; which token roles confer them is
// deployment configuration.
const (
	policyRoleAdmin = "admin"
	policyRoleUser  = "user"
)

// Config holds the deployment-specific role mapping for identity construction.
type Config struct {
	// ClientID is the OIDC client/application identifier that namespaces the
	// default role names.
	ClientID string

	// AdminRole and BasicAccessRole are complete role names as they appear in
	// token claims (realm roles bare, resource roles "resource:role").
	// Defaults are derived from ClientID, e.g. "api" -> "api_admin".
	AdminRole       string
	BasicAccessRole string

	// VerboseErrors surfaces internal failure detail in 401 responses.
	// Development only.
	VerboseErrors bool
}

// Identity is the request-scoped principal: decoded claims plus a private
// policy evaluator carrying the token's role grants. It is created at the
// start of request processing and discarded with the request.
type Identity struct {
	claims   *Claims
	engine   *PolicyEngine
	username string
	isAdmin  bool
}

// NewIdentity builds an Identity from decoded claims. Every role in the
// claims is registered as a transient grant on a fresh evaluator instance,
// never on shared state. Construction fails with *AccessDisabledError when
// the subject holds neither the admin nor the basic-access role (directly or
// via the role hierarchy).
func NewIdentity(claims *Claims, store *PolicyStore, cfg Config) (*Identity, error) {
	username := claims.Username()
	if username == "" {
		return nil, &AuthenticationError{Reason: "token has no preferred_username"}
	}

	engine, err := store.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("policy engine unavailable: %w", err)
	}

	for _, role := range claims.EffectiveRoles() {
		if err := engine.AddRoleForSubject(username, role); err != nil {
			return nil, err
		}
	}

	isAdmin := engine.HasRole(username, cfg.AdminRole)
	isBasic := engine.HasRole(username, cfg.BasicAccessRole)

	if !isAdmin && !isBasic {
		return nil, &AccessDisabledError{Username: username}
	}

	// Map the deployment's token roles onto the internal policy roles the
	// static rules are written against. Admin implies the full hierarchy.
	if isAdmin {
		if err := engine.AddRoleForSubject(username, RoleRef{Name: policyRoleAdmin}); err != nil {
			return nil, err
		}
	} else {
		if err := engine.AddRoleForSubject(username, RoleRef{Name: policyRoleUser}); err != nil {
			return nil, err
		}
	}

	return &Identity{
		claims:   claims,
		engine:   engine,
		username: username,
		isAdmin:  isAdmin,
	}, nil
}

// Username returns the stable subject identifier from the token.
func (id *Identity) Username() string { return id.username }

// IsAdmin reports whether the subject holds the configured admin role.
func (id *Identity) IsAdmin() bool { return id.isAdmin }

// IsEnabled reports whether the subject may use the API at all. A
// constructed Identity is always enabled; the check lives here so callers
// can assert it without knowing construction internals.
func (id *Identity) IsEnabled() bool { return true }

// Claims exposes the decoded token payload.
func (id *Identity) Claims() *Claims { return id.claims }

// Roles returns the subject's effective roles, expanded through the role
// hierarchy.
func (id *Identity) Roles() []string {
	return id.engine.ImplicitRoles(id.username)
}

// HasRole reports whether the subject holds the role, hierarchy included.
func (id *Identity) HasRole(role string) bool {
	return id.engine.HasRole(id.username, role)
}

// EnforceOrDeny checks (subject, object, action) against policy and returns
// an *AuthorizationError on denial. Visibility scoping narrows which rows a
// query returns; this decides whether the action is allowed at all. Both are
// always applied.
func (id *Identity) EnforceOrDeny(object, action string) error {
	if id.engine.Enforce(id.username, object, action) {
		return nil
	}
	return &AuthorizationError{Subject: id.username, Object: object, Action: action}
}
