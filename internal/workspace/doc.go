// Package workspace ties the metadata store, TOML mirror, oplog, and
// hook boundary together into the workspace engine's orchestration
// layer: mutations run inside a snapshot-protected transaction
// serialized behind a per-project write lease, and on success the
// workspace ref is refreshed and the TOML mirror rewritten from the
// store.
package workspace
