package auth

import (
	"reflect"
	"testing"
)

func TestRoleRef_String(t *testing.T) {
	tests := []struct {
		name string
		ref  RoleRef
		want string
	}{
		{name: "bare realm role", ref: RoleRef{Name: "steward"}, want: "steward"},
		{name: "resource-scoped role", ref: RoleRef{Resource: "api", Name: "admin"}, want: "api:admin"},
		{name: "resource containing colon", ref: RoleRef{Resource: "tenant:api", Name: "admin"}, want: "tenant:api:admin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ref.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClaims_EffectiveRoles(t *testing.T) {
	claims := &Claims{
		PreferredUsername: "alice",
		RealmAccess:       roleSet{Roles: []string{"api_basic_access", "steward"}},
		ResourceAccess: map[string]roleSet{
			"reporting": {Roles: []string{"viewer"}},
			"api":       {Roles: []string{"uploader"}},
		},
	}

	got := claims.EffectiveRoles()
	want := []RoleRef{
		{Name: "api_basic_access"},
		{Name: "steward"},
		{Resource: "api", Name: "uploader"},
		{Resource: "reporting", Name: "viewer"},
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("EffectiveRoles() = %v, want %v", got, want)
	}
}

func TestClaims_EffectiveRoles_AbsentContainers(t *testing.T) {
	claims := &Claims{PreferredUsername: "bob"}

	if got := claims.EffectiveRoles(); len(got) != 0 {
		t.Errorf("EffectiveRoles() = %v, want empty", got)
	}
}

func TestClaims_EffectiveRoles_SkipsEmptyNames(t *testing.T) {
	claims := &Claims{
		RealmAccess: roleSet{Roles: []string{"", "valid"}},
		ResourceAccess: map[string]roleSet{
			"api": {Roles: []string{""}},
		},
	}

	got := claims.EffectiveRoles()
	if len(got) != 1 || got[0].Name != "valid" {
		t.Errorf("EffectiveRoles() = %v, want only [valid]", got)
	}
}
