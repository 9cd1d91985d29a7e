// Package storage holds the persistence configuration and the translation of
// row-visibility scopes into SQL predicates. The PostgreSQL implementation of
// the api.Store contract lives in the postgres subpackage; S3 holds asset
// object content; Redis backs the workflow job queue.
//
// Visibility is enforced in SQL: every scoped query carries the predicate
// produced by ScopeClause, so a row outside the caller's scope is
// indistinguishable from a row that does not exist.
package storage
