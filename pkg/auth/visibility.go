package auth

// Scope restricts which rows a query may see or touch. The storage layer
// translates it into SQL predicates; it never widens what EnforceOrDeny
// already decided about the action itself.
type Scope struct {
	// All disables row filtering (admin override).
	All bool

	// Owner limits rows to those created by this subject.
	Owner string

	// IncludePublic additionally admits rows whose visibility is public.
	IncludePublic bool
}

// Empty reports whether the scope matches no rows at all.
func (s Scope) Empty() bool {
	return !s.All && s.Owner == "" && !s.IncludePublic
}

// AssetScope returns the row filter for assets. Anonymous callers see public
// assets only; owners additionally see their own; admins see everything.
func AssetScope(ident *Identity) Scope {
	if ident == nil {
		return Scope{IncludePublic: true}
	}
	if ident.IsAdmin() {
		return Scope{All: true}
	}
	return Scope{Owner: ident.Username(), IncludePublic: true}
}

// AssetObjectScope mirrors AssetScope: objects inherit the owning asset's
// public visibility.
func AssetObjectScope(ident *Identity) Scope {
	return AssetScope(ident)
}

// AccessRequestScope limits access requests to their requester. Admins (and
// through them, stewards reviewing requests) see everything.
func AccessRequestScope(ident *Identity) Scope {
	if ident == nil {
		return Scope{}
	}
	if ident.IsAdmin() || ident.HasRole("steward") {
		return Scope{All: true}
	}
	return Scope{Owner: ident.Username()}
}

// WorkflowJobScope limits jobs to their submitter; admins see everything.
func WorkflowJobScope(ident *Identity) Scope {
	if ident == nil {
		return Scope{}
	}
	if ident.IsAdmin() {
		return Scope{All: true}
	}
	return Scope{Owner: ident.Username()}
}

// UserMetadataScope limits metadata strictly to its owner; admins see
// everything.
func UserMetadataScope(ident *Identity) Scope {
	if ident == nil {
		return Scope{}
	}
	if ident.IsAdmin() {
		return Scope{All: true}
	}
	return Scope{Owner: ident.Username()}
}
