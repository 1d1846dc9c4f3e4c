package stepgraph

import "loomstack.dev/loom/internal/gitx"

// HeadSpec names one stack head's branch reference and current tip
// commit, the unit BuildFromHeads consumes to seed a graph from
// existing git history.
type HeadSpec struct {
	Refname string
	Tip     gitx.OID
}

// BuildResult is the outcome of BuildFromHeads: the populated graph,
// each head's Reference selector keyed by refname, the boundary
// node representing base (if any commit in the walk actually reaches
// it), and base itself for callers that need the fixed commit id a
// Reference falls back to when it has no reachable Pick parent.
type BuildResult struct {
	Graph    *Graph
	ByRef    map[string]Selector
	Boundary *Selector
	BaseOID  gitx.OID
}

// BuildFromHeads walks repo's ancestry from each head's tip down to
// base, building one Pick per reachable commit plus a single shared
// boundary Pick for base itself (never edited, never recommitted) and
// a Reference step per head. Commits reachable from more than one
// head are visited once and shared, so a graph built this way
// naturally represents merge history rather than duplicating shared
// ancestors.
func BuildFromHeads(repo gitx.Repository, base gitx.OID, heads []HeadSpec) (*BuildResult, error) {
	g := New()
	visited := map[gitx.OID]NodeID{}
	var boundaryNode NodeID
	haveBoundary := false

	var visit func(id gitx.OID) (NodeID, bool, error)
	visit = func(id gitx.OID) (NodeID, bool, error) {
		if id.IsZero() {
			return 0, false, nil
		}
		if id == base {
			if !haveBoundary {
				boundaryNode = g.addNode(Pick(id))
				visited[id] = boundaryNode
				haveBoundary = true
			}
			return boundaryNode, true, nil
		}
		if nid, ok := visited[id]; ok {
			return nid, true, nil
		}
		info, err := repo.FindCommit(id)
		if err != nil {
			return 0, false, err
		}
		nid := g.addNode(Pick(id))
		visited[id] = nid
		for _, p := range info.ParentIDs {
			pid, ok, err := visit(p)
			if err != nil {
				return 0, false, err
			}
			if ok {
				g.addEdge(pid, nid)
			}
		}
		return nid, true, nil
	}

	byRef := map[string]Selector{}
	for _, h := range heads {
		tipID, ok, err := visit(h.Tip)
		if err != nil {
			return nil, err
		}
		refID := g.addNode(Reference(h.Refname))
		if ok {
			g.addEdge(tipID, refID)
		}
		byRef[h.Refname] = Selector{Node: refID, Revision: g.revision}
	}

	result := &BuildResult{Graph: g, ByRef: byRef, BaseOID: base}
	if haveBoundary {
		sel := Selector{Node: boundaryNode, Revision: g.revision}
		result.Boundary = &sel
	}
	return result, nil
}
