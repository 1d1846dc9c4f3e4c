package stepgraph

import "loomstack.dev/loom/internal/loomerr"

// LookupStep returns the step stored at selector's node.
func (g *Graph) LookupStep(selector Selector) (Step, error) {
	sel, err := g.normalize(selector)
	if err != nil {
		return Step{}, err
	}
	return g.nodes[sel.Node].step, nil
}

// FindSelectableCommit normalizes selector and confirms it resolves to
// a Pick step.
func (g *Graph) FindSelectableCommit(selector Selector) (Selector, Step, error) {
	sel, err := g.normalize(selector)
	if err != nil {
		return Selector{}, Step{}, err
	}
	step := g.nodes[sel.Node].step
	if step.Kind != StepPick {
		return Selector{}, Step{}, loomerr.Validationf(nodeRef(sel.Node), "selector does not resolve to a pick step")
	}
	return sel, step, nil
}

// Parents returns selector's direct structural parents, in insertion
// order. The rebase executor's planner uses this to walk the graph
// bottom-up.
func (g *Graph) Parents(selector Selector) ([]Selector, error) {
	sel, err := g.normalize(selector)
	if err != nil {
		return nil, err
	}
	parents := g.nodes[sel.Node].parents
	out := make([]Selector, len(parents))
	for i, p := range parents {
		out[i] = Selector{Node: p, Revision: g.revision}
	}
	return out, nil
}

// Children returns selector's direct structural children, in insertion
// order. Squash uses this to find Reference steps sitting directly on
// a commit before that commit is dropped, so they can be repointed
// instead of left to Disconnect's default parent-ward rewiring.
func (g *Graph) Children(selector Selector) ([]Selector, error) {
	sel, err := g.normalize(selector)
	if err != nil {
		return nil, err
	}
	children := g.nodes[sel.Node].children
	out := make([]Selector, len(children))
	for i, c := range children {
		out[i] = Selector{Node: c, Revision: g.revision}
	}
	return out, nil
}

// FindReferenceTarget walks refSelector's parents to the first Pick,
// skipping any None and Reference steps along the way, and returns its selector and
// step. Removing that Pick moves the reference to the next parent
// below, since the walk simply continues past the gap left behind.
func (g *Graph) FindReferenceTarget(refSelector Selector) (Selector, Step, error) {
	sel, err := g.normalize(refSelector)
	if err != nil {
		return Selector{}, Step{}, err
	}
	step := g.nodes[sel.Node].step
	if step.Kind != StepReference {
		return Selector{}, Step{}, loomerr.Validationf(nodeRef(sel.Node), "selector does not resolve to a reference step")
	}

	visited := map[NodeID]bool{}
	var walk func(id NodeID) (NodeID, bool)
	walk = func(id NodeID) (NodeID, bool) {
		if visited[id] {
			return 0, false
		}
		visited[id] = true
		for _, p := range g.nodes[id].parents {
			switch g.nodes[p].step.Kind {
			case StepPick:
				return p, true
			case StepNone, StepReference:
				if found, ok := walk(p); ok {
					return found, true
				}
			}
		}
		return 0, false
	}

	target, ok := walk(sel.Node)
	if !ok {
		return Selector{}, Step{}, loomerr.NotFoundf(refNodeSubject(step), "reference has no reachable pick parent")
	}
	return Selector{Node: target, Revision: g.revision}, g.nodes[target].step, nil
}

func refNodeSubject(step Step) string {
	if step.Refname != "" {
		return step.Refname
	}
	return "reference"
}
