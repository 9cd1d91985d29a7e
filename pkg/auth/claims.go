package auth

import (
	"sort"

	"github.com/golang-jwt/jwt/v5"
)

// RoleRef is a role assertion from a token, optionally scoped to a resource
// (OIDC client). Keeping resource and name separate avoids ambiguity when a
// resource name itself contains a colon; the colon-joined form is only
// produced at the policy-matching boundary.
type RoleRef struct {
	Resource string
	Name     string
}

func (r RoleRef) String() string {
	if r.Resource == "" {
		return r.Name
	}
	return r.Resource + ":" + r.Name
}

// roleSet is the nested {"roles": [...]} shape Keycloak-style tokens use.
type roleSet struct {
	Roles []string `json:"roles"`
}

// Claims is the decoded payload of a bearer token. Immutable once decoded;
// lives for a single request. Absent role containers decode to empty sets
// rather than failing.
type Claims struct {
	jwt.RegisteredClaims

	PreferredUsername string             `json:"preferred_username"`
	Email             string             `json:"email,omitempty"`
	RealmAccess       roleSet            `json:"realm_access"`
	ResourceAccess    map[string]roleSet `json:"resource_access"`
}

// Username returns the stable subject identifier.
func (c *Claims) Username() string {
	return c.PreferredUsername
}

// EffectiveRoles flattens realm-level roles (bare names) and resource-scoped
// roles (resource-prefixed) into a single deterministic-ordered slice.
func (c *Claims) EffectiveRoles() []RoleRef {
	refs := make([]RoleRef, 0, len(c.RealmAccess.Roles))
	for _, role := range c.RealmAccess.Roles {
		if role == "" {
			continue
		}
		refs = append(refs, RoleRef{Name: role})
	}

	resources := make([]string, 0, len(c.ResourceAccess))
	for resource := range c.ResourceAccess {
		resources = append(resources, resource)
	}
	sort.Strings(resources)

	for _, resource := range resources {
		for _, role := range c.ResourceAccess[resource].Roles {
			if role == "" {
				continue
			}
			refs = append(refs, RoleRef{Resource: resource, Name: role})
		}
	}

	return refs
}
