// Package stack expresses a stack as an ordered list of heads (tip
// first) and implements the squash, amend, and create operations that
// edit a stack's commits by driving internal/stepgraph and
// internal/rebase rather than by reimplementing rebase mechanics.
package stack
