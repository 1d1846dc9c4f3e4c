package stack

import "loomstack.dev/loom/internal/stepgraph"

// Reparent relinks headRef, a Reference step, directly onto the nearest
// Pick ancestor still reachable from it, collapsing any gap left by a
// parent that has since been removed, squashed away, or merged
// upstream and pruned. It commits FindReferenceTarget's read-time walk
// back into the graph's structural edges via RepointReference, so later
// selectors against headRef do not have to re-walk past the gap, and
// the head never carries a dangling parent reference.
func Reparent(graph *stepgraph.Graph, headRef stepgraph.Selector) (stepgraph.Selector, error) {
	target, _, err := graph.FindReferenceTarget(headRef)
	if err != nil {
		return stepgraph.Selector{}, err
	}
	if err := graph.RepointReference(headRef, target); err != nil {
		return stepgraph.Selector{}, err
	}
	return target, nil
}
