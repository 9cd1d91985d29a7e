package auth

import "fmt"

// AuthenticationError indicates the bearer token was missing, malformed,
// unverifiable, or expired. Surfaces as HTTP 401 with a generic message.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return "authentication failed: " + e.Reason
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// AccessDisabledError indicates the token verified but the subject holds
// neither the basic-access role nor the admin role. Surfaces as HTTP 401,
// indistinguishable from an authentication failure, so a caller cannot probe
// whether a username exists.
type AccessDisabledError struct {
	Username string
}

func (e *AccessDisabledError) Error() string {
	return fmt.Sprintf("access disabled for %q: subject holds neither basic-access nor admin role", e.Username)
}

// AuthorizationError indicates a valid, enabled subject was denied a specific
// (object, action) by policy. Surfaces as HTTP 403.
type AuthorizationError struct {
	Subject string
	Object  string
	Action  string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("subject %q is not allowed to %s %s", e.Subject, e.Action, e.Object)
}

// UpstreamUnavailableError indicates the OIDC discovery or JWKS endpoint could
// not be reached. It is normalized to an AuthenticationError at the request
// boundary; the full detail is only logged server-side.
type UpstreamUnavailableError struct {
	Endpoint string
	Err      error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("identity provider unavailable: %s: %v", e.Endpoint, e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error { return e.Err }
