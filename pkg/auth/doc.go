// Package auth implements the authorization core: bearer-token resolution,
// policy evaluation, per-request identity, the HTTP request gate, and
// row-visibility scoping.
//
// # Request flow
//
// Every protected request moves through a linear pipeline:
//
//	Authorization header -> TokenResolver -> Claims
//	Claims + PolicyStore -> Identity (transient role grants registered)
//	Identity -> context (Require/Optional middleware)
//	handler -> Identity.EnforceOrDeny(object, action) + visibility Scope
//
// There is no retry anywhere in the pipeline; a failed verification fails the
// request and the client must re-authenticate.
//
// # Token resolution
//
// TokenResolver verifies RS256-family JWTs against keys discovered through
// the OIDC discovery document. Discovery/JWKS lookups are cached (24h TTL,
// capacity-bounded) and deduplicated with singleflight so a cold-cache burst
// produces one upstream fetch. A kid miss invalidates the cached document
// once, which absorbs provider key rotation without waiting out the TTL.
//
// With DisableVerification set, tokens are decoded without signature or
// expiry checks. This is an explicit development backdoor; configuration
// validation refuses it under a production profile.
//
// # Policy evaluation
//
// PolicyStore holds the static RBAC model (casbin model + csv policy,
// embedded in the binary, optionally overridden from a watched directory).
// It is read-only at request time. Each Identity gets its own PolicyEngine
// built from the static text, so the transient grants derived from token
// claims are isolated per request and can never leak between concurrent
// requests.
//
// Role names from resource_access are carried as (resource, name) pairs and
// only serialized to "resource:role" where they meet the policy matcher.
//
// # Failure taxonomy
//
//   - AuthenticationError: no token, bad token, unverifiable token -> 401
//   - AccessDisabledError: verified subject without basic access -> 401
//     (identical to the above on the wire)
//   - AuthorizationError: enabled subject, denied (object, action) -> 403
//   - UpstreamUnavailableError: discovery/JWKS unreachable; logged with
//     detail, surfaced as a generic 401
//
// # Enforcement vs visibility
//
// EnforceOrDeny answers "may this subject perform this action on this kind
// of object at all". The Scope builders answer "which rows may this subject
// see or touch". Handlers apply both; neither substitutes for the other.
package auth
