// Package api exposes the HTTP surface of the asset catalog.
//
// Every route passes through the request gate (pkg/auth): reads on assets and
// their objects accept anonymous callers with public-only visibility, all
// writes and the request/job/metadata routes require a verified, enabled
// identity. Handlers follow one shape:
//
//	gate -> EnforceOrDeny(object, action) -> visibility-scoped storage call
//
// Enforcement decides whether the action is allowed at all; the scope decides
// which rows the query may touch. A row outside the scope surfaces as 404.
package api
