package stepgraph

import (
	"loomstack.dev/loom/internal/gitx"
	"loomstack.dev/loom/internal/loomerr"
)

// SelectCommit locates the unique Pick for commitID.
func (g *Graph) SelectCommit(commitID gitx.OID) (Selector, error) {
	id, ok := g.byCommit[commitID]
	if !ok {
		return Selector{}, loomerr.NotFoundf(string(commitID), "NotInGraph: commit has no pick step")
	}
	return Selector{Node: id, Revision: g.revision}, nil
}

// Insert places step on the given side of relativeTo and returns its
// selector. For a Reference relativeTo, side is ignored: the new node
// is spliced in directly below the reference, taking over all of the
// reference's current parents and becoming its only parent. A None
// relativeTo carries no positional meaning, so the new node is
// inserted parentless.
func (g *Graph) Insert(relativeTo Selector, step Step, side Side) (Selector, error) {
	sel, err := g.normalize(relativeTo)
	if err != nil {
		return Selector{}, err
	}
	anchor := sel.Node
	anchorStep := g.nodes[anchor].step

	switch anchorStep.Kind {
	case StepNone:
		id := g.addNode(step)
		g.bump()
		return Selector{Node: id, Revision: g.revision}, nil

	case StepReference:
		id := g.addNode(step)
		oldParents := append([]NodeID(nil), g.nodes[anchor].parents...)
		g.nodes[anchor].parents = []NodeID{id}
		g.nodes[id].parents = oldParents
		for _, p := range oldParents {
			g.nodes[p].children = replaceOne(g.nodes[p].children, anchor, []NodeID{id})
		}
		g.nodes[id].children = []NodeID{anchor}
		g.bump()
		return Selector{Node: id, Revision: g.revision}, nil

	default:
		id := g.addNode(step)
		switch side {
		case Above:
			oldChildren := append([]NodeID(nil), g.nodes[anchor].children...)
			g.nodes[anchor].children = []NodeID{id}
			g.nodes[id].parents = []NodeID{anchor}
			g.nodes[id].children = oldChildren
			for _, c := range oldChildren {
				g.nodes[c].parents = replaceOne(g.nodes[c].parents, anchor, []NodeID{id})
			}
		case Below:
			oldParents := append([]NodeID(nil), g.nodes[anchor].parents...)
			g.nodes[anchor].parents = []NodeID{id}
			g.nodes[id].parents = oldParents
			for _, p := range oldParents {
				g.nodes[p].children = replaceOne(g.nodes[p].children, anchor, []NodeID{id})
			}
			g.nodes[id].children = []NodeID{anchor}
		}
		g.bump()
		return Selector{Node: id, Revision: g.revision}, nil
	}
}

// Replace swaps the step stored at selector's node in place, leaving
// adjacency untouched.
func (g *Graph) Replace(selector Selector, step Step) error {
	sel, err := g.normalize(selector)
	if err != nil {
		return err
	}
	old := g.nodes[sel.Node].step
	if old.Kind == StepPick {
		delete(g.byCommit, old.CommitID)
	}
	g.nodes[sel.Node].step = step
	if step.Kind == StepPick {
		g.byCommit[step.CommitID] = sel.Node
	}
	g.bump()
	return nil
}

// RepointReference detaches refSelector from its current parent(s) and
// attaches it directly above to, so it resolves to to's commit on the
// next FindReferenceTarget walk. Used by squash to carry a reference
// that named a dropped source forward onto the surviving destination,
// rather than letting it fall back to whatever the source's own parent
// was (Disconnect's default, correct for plain removal but wrong for a
// squash where the content moved forward, not away).
func (g *Graph) RepointReference(refSelector, to Selector) error {
	ref, err := g.normalize(refSelector)
	if err != nil {
		return err
	}
	if g.nodes[ref.Node].step.Kind != StepReference {
		return loomerr.Validationf(nodeRef(ref.Node), "selector does not resolve to a reference step")
	}
	toSel, err := g.normalize(to)
	if err != nil {
		return err
	}

	for _, p := range g.nodes[ref.Node].parents {
		g.nodes[p].children = removeNode(g.nodes[p].children, ref.Node)
	}
	g.nodes[ref.Node].parents = []NodeID{toSel.Node}
	if !containsNode(g.nodes[toSel.Node].children, ref.Node) {
		g.nodes[toSel.Node].children = append(g.nodes[toSel.Node].children, ref.Node)
	}
	g.bump()
	return nil
}

// Disconnect detaches the contiguous single-parent run of nodes from
// `from` down through `to` (inclusive; from == to detaches just one
// node, including a merge node with several parents). Every node
// outside the run that had `from` as a parent is rewired to adopt
// `to`'s own parent set in `from`'s place, preserving order. Nodes
// inside the run keep their internal links but become unreachable
// once nothing outside the run points at them anymore.
func (g *Graph) Disconnect(from, to Selector) error {
	fromSel, err := g.normalize(from)
	if err != nil {
		return err
	}
	toSel, err := g.normalize(to)
	if err != nil {
		return err
	}

	if fromSel.Node != toSel.Node {
		cur := fromSel.Node
		for cur != toSel.Node {
			if len(g.nodes[cur].parents) != 1 {
				return loomerr.Validationf(nodeRef(fromSel.Node), "disconnect run from %s to %s is not a contiguous single-parent chain", nodeRef(fromSel.Node), nodeRef(toSel.Node))
			}
			cur = g.nodes[cur].parents[0]
		}
	}

	fromID, toID := fromSel.Node, toSel.Node
	childrenOfFrom := append([]NodeID(nil), g.nodes[fromID].children...)
	parentsOfTo := append([]NodeID(nil), g.nodes[toID].parents...)

	for _, c := range childrenOfFrom {
		g.nodes[c].parents = replaceOne(g.nodes[c].parents, fromID, parentsOfTo)
		for _, p := range parentsOfTo {
			if !containsNode(g.nodes[p].children, c) {
				g.nodes[p].children = append(g.nodes[p].children, c)
			}
		}
	}
	g.nodes[fromID].children = nil

	g.bump()
	return g.checkAcyclic()
}

// checkAcyclic walks parent edges from every node and fails if a cycle
// is found. Disconnect only ever substitutes a node's existing
// ancestors for itself, so this should never trip in practice; it
// exists as a guard against misuse rather than a load-bearing check.
func (g *Graph) checkAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(g.nodes))
	var visit func(id NodeID) error
	visit = func(id NodeID) error {
		switch color[id] {
		case gray:
			return loomerr.CorruptStatef(nodeRef(id), "step graph contains a cycle")
		case black:
			return nil
		}
		color[id] = gray
		for _, p := range g.nodes[id].parents {
			if err := visit(p); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}
	for id := range g.nodes {
		if err := visit(NodeID(id)); err != nil {
			return err
		}
	}
	return nil
}
