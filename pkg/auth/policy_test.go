package auth

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *PolicyStore {
	t.Helper()
	return NewPolicyStore(nil)
}

func TestPolicyEngine_StaticRules(t *testing.T) {
	engine, err := newTestStore(t).NewEngine()
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	if err := engine.AddRoleForSubject("alice", RoleRef{Name: "user"}); err != nil {
		t.Fatalf("AddRoleForSubject() error = %v", err)
	}

	tests := []struct {
		object string
		action string
		want   bool
	}{
		{"asset", "read", true},
		{"asset", "create", true},
		{"access_request", "approve", false},
		{"unknown_entity", "read", false},
		{"asset", "unknown_action", false},
	}

	for _, tt := range tests {
		if got := engine.Enforce("alice", tt.object, tt.action); got != tt.want {
			t.Errorf("Enforce(alice, %s, %s) = %v, want %v", tt.object, tt.action, got, tt.want)
		}
	}
}

func TestPolicyEngine_RoleHierarchy(t *testing.T) {
	engine, err := newTestStore(t).NewEngine()
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	// steward -> user in the packaged policy
	if err := engine.AddRoleForSubject("carol", RoleRef{Name: "steward"}); err != nil {
		t.Fatalf("AddRoleForSubject() error = %v", err)
	}

	if !engine.HasRole("carol", "user") {
		t.Error("steward should hold user via hierarchy")
	}
	if !engine.Enforce("carol", "asset", "read") {
		t.Error("rule keyed on user should apply to steward via hierarchy")
	}
	if !engine.Enforce("carol", "access_request", "approve") {
		t.Error("steward rule should apply directly")
	}
}

func TestPolicyEngine_AdminWildcard(t *testing.T) {
	engine, err := newTestStore(t).NewEngine()
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	if err := engine.AddRoleForSubject("root", RoleRef{Name: "admin"}); err != nil {
		t.Fatalf("AddRoleForSubject() error = %v", err)
	}

	for _, object := range []string{"asset", "workflow_job", "anything_at_all"} {
		for _, action := range []string{"read", "delete", "invented"} {
			if !engine.Enforce("root", object, action) {
				t.Errorf("admin wildcard should allow (%s, %s)", object, action)
			}
		}
	}
}

func TestPolicyEngine_EnforceIdempotent(t *testing.T) {
	engine, err := newTestStore(t).NewEngine()
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if err := engine.AddRoleForSubject("alice", RoleRef{Name: "user"}); err != nil {
		t.Fatalf("AddRoleForSubject() error = %v", err)
	}

	first := engine.Enforce("alice", "asset", "read")
	second := engine.Enforce("alice", "asset", "read")
	if first != second {
		t.Errorf("repeated Enforce changed decision: %v then %v", first, second)
	}
}

func TestPolicyStore_EngineIsolation(t *testing.T) {
	store := newTestStore(t)

	engineA, err := store.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	engineB, err := store.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	if err := engineA.AddRoleForSubject("alice", RoleRef{Name: "admin"}); err != nil {
		t.Fatalf("AddRoleForSubject() error = %v", err)
	}

	// A transient grant in one request's engine must be invisible to another
	if engineB.HasRole("alice", "admin") {
		t.Error("transient grant leaked across engine instances")
	}
	if engineB.Enforce("alice", "asset", "read") {
		t.Error("subject with no grants should be denied in a fresh engine")
	}
}

func TestPolicyEngine_ImplicitRoles(t *testing.T) {
	engine, err := newTestStore(t).NewEngine()
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if err := engine.AddRoleForSubject("root", RoleRef{Name: "admin"}); err != nil {
		t.Fatalf("AddRoleForSubject() error = %v", err)
	}

	roles := engine.ImplicitRoles("root")
	want := map[string]bool{"admin": false, "steward": false, "user": false}
	for _, role := range roles {
		if _, ok := want[role]; ok {
			want[role] = true
		}
	}
	for role, seen := range want {
		if !seen {
			t.Errorf("ImplicitRoles missing %q, got %v", role, roles)
		}
	}
}

func TestPolicyStore_LoadDir(t *testing.T) {
	dir := t.TempDir()
	modelText := defaultModelText
	policyText := "p, contributor, asset, read\n"

	if err := os.WriteFile(filepath.Join(dir, "model.conf"), []byte(modelText), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "policy.csv"), []byte(policyText), 0o644); err != nil {
		t.Fatal(err)
	}

	store := newTestStore(t)
	if err := store.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}

	engine, err := store.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if err := engine.AddRoleForSubject("alice", RoleRef{Name: "contributor"}); err != nil {
		t.Fatal(err)
	}
	if !engine.Enforce("alice", "asset", "read") {
		t.Error("override policy rule not in effect")
	}
	if engine.Enforce("alice", "asset", "create") {
		t.Error("packaged policy should be fully replaced by the override")
	}
}

func TestPolicyStore_LoadDir_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "model.conf"), []byte("not a model"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "policy.csv"), []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	store := newTestStore(t)
	if err := store.LoadDir(dir); err == nil {
		t.Fatal("LoadDir() should reject an invalid model")
	}

	// Previous (packaged) policy must still be active
	engine, err := store.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if err := engine.AddRoleForSubject("alice", RoleRef{Name: "user"}); err != nil {
		t.Fatal(err)
	}
	if !engine.Enforce("alice", "asset", "read") {
		t.Error("packaged policy lost after rejected reload")
	}
}
