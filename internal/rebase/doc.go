// Package rebase turns an edited stepgraph.Graph into real commit
// objects. It replays each Pick bottom-up, short-circuiting commits
// whose parents and message are unchanged, and produces a legal
// conflict-carrying commit instead of aborting when a three-way merge
// cannot cleanly resolve.
package rebase
