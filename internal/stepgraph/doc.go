// Package stepgraph implements the editable rebase-step graph: an
// arena of Pick/Reference/None nodes with explicit parent and child
// adjacency, selectors that carry a revision counter, and the edit
// primitives (select_commit, insert, replace, disconnect,
// find_reference_target) used to reshape history before replay.
package stepgraph
