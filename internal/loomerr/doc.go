// Package loomerr provides the typed error taxonomy shared by every
// workspace-engine component: validation failures, not-found lookups,
// partially-rejected change specs, hook failures, and fatal storage
// errors. Callers should use errors.Is/errors.As against the sentinel
// Kind values rather than string-matching error text.
package loomerr
