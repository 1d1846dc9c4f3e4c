// Package hooks runs user-defined git hook scripts behind one typed
// interface, implementing the hook boundary of the workspace engine:
// every hook produces exactly one of NotConfigured, Success, Failure,
// or (commit-msg only) Message.
package hooks
