// Package oplog captures a WorkspaceSnapshot before every user-visible
// mutation and restores it on failure, implementing the bounded,
// append-only undo log of the workspace engine: timestamp-prefixed
// filenames that sort chronologically by name alone, a retention trim
// past a configured depth, and a load-then-restore split.
package oplog
