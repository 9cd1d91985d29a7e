package auth

import "testing"

func testIdentity(t *testing.T, username string, roles ...string) *Identity {
	t.Helper()
	ident, err := identityFor(t, &Claims{
		PreferredUsername: username,
		RealmAccess:       roleSet{Roles: roles},
	})
	if err != nil {
		t.Fatalf("NewIdentity(%s) error = %v", username, err)
	}
	return ident
}

func TestAssetScope(t *testing.T) {
	alice := testIdentity(t, "alice", "api_basic_access")
	root := testIdentity(t, "root", "api_admin")

	tests := []struct {
		name  string
		ident *Identity
		want  Scope
	}{
		{name: "anonymous sees public only", ident: nil, want: Scope{IncludePublic: true}},
		{name: "owner sees own plus public", ident: alice, want: Scope{Owner: "alice", IncludePublic: true}},
		{name: "admin sees everything", ident: root, want: Scope{All: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AssetScope(tt.ident); got != tt.want {
				t.Errorf("AssetScope() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAssetObjectScope_MirrorsAssetScope(t *testing.T) {
	alice := testIdentity(t, "alice", "api_basic_access")
	if got, want := AssetObjectScope(alice), AssetScope(alice); got != want {
		t.Errorf("AssetObjectScope() = %+v, want %+v", got, want)
	}
	if got, want := AssetObjectScope(nil), AssetScope(nil); got != want {
		t.Errorf("AssetObjectScope(nil) = %+v, want %+v", got, want)
	}
}

func TestAccessRequestScope(t *testing.T) {
	alice := testIdentity(t, "alice", "api_basic_access")
	carol := testIdentity(t, "carol", "api_basic_access", "steward")
	root := testIdentity(t, "root", "api_admin")

	if got := AccessRequestScope(nil); !got.Empty() {
		t.Errorf("anonymous scope = %+v, want empty", got)
	}
	if got := AccessRequestScope(alice); got != (Scope{Owner: "alice"}) {
		t.Errorf("requester scope = %+v, want own rows only", got)
	}
	if got := AccessRequestScope(carol); !got.All {
		t.Errorf("steward scope = %+v, want all rows", got)
	}
	if got := AccessRequestScope(root); !got.All {
		t.Errorf("admin scope = %+v, want all rows", got)
	}
}

func TestWorkflowJobScope(t *testing.T) {
	bob := testIdentity(t, "bob", "api_basic_access")
	root := testIdentity(t, "root", "api_admin")

	if got := WorkflowJobScope(nil); !got.Empty() {
		t.Errorf("anonymous scope = %+v, want empty", got)
	}
	if got := WorkflowJobScope(bob); got != (Scope{Owner: "bob"}) {
		t.Errorf("submitter scope = %+v", got)
	}
	if got := WorkflowJobScope(root); !got.All {
		t.Errorf("admin scope = %+v, want all rows", got)
	}
}

func TestUserMetadataScope(t *testing.T) {
	bob := testIdentity(t, "bob", "api_basic_access")
	root := testIdentity(t, "root", "api_admin")

	if got := UserMetadataScope(nil); !got.Empty() {
		t.Errorf("anonymous scope = %+v, want empty", got)
	}
	if got := UserMetadataScope(bob); got != (Scope{Owner: "bob"}) {
		t.Errorf("owner scope = %+v", got)
	}
	if got := UserMetadataScope(root); !got.All {
		t.Errorf("admin scope = %+v, want all rows", got)
	}
}

func TestScope_Empty(t *testing.T) {
	if !(Scope{}).Empty() {
		t.Error("zero scope should be empty")
	}
	if (Scope{All: true}).Empty() {
		t.Error("All scope is not empty")
	}
	if (Scope{Owner: "alice"}).Empty() {
		t.Error("owner scope is not empty")
	}
	if (Scope{IncludePublic: true}).Empty() {
		t.Error("public scope is not empty")
	}
}
