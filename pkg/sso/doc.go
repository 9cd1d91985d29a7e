// Package sso implements the browser login flow against the configured OIDC
// issuer. It runs the authorization-code flow with a state cookie, verifies
// the ID token, and returns the access token to the caller; the API accepts
// that token on its bearer-authenticated routes, so no separate session
// store is involved.
package sso
