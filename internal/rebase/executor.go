package rebase

import (
	"context"
	"strings"

	"loomstack.dev/loom/internal/gitx"
	"loomstack.dev/loom/internal/loomerr"
	"loomstack.dev/loom/internal/stepgraph"
)

// conflictHeaderTrailer marks a commit message as carrying an
// unresolved merge, so readers can detect conflicted history without
// inspecting the tree shape.
const conflictHeaderTrailer = "Loom-Conflict: true"

// IsConflictMarked reports whether message carries the conflict
// trailer a replayed commit gets when its tree could not be cleanly
// three-way merged. Exported so callers outside this package (the
// stack model's squash/amend preconditions) can reject an operation
// touching a conflicted commit without reaching into gitx directly.
func IsConflictMarked(message string) bool {
	return strings.Contains(message, conflictHeaderTrailer)
}

// SuccessfulRebase records the selector-to-commit-id mapping an
// Execute call produced, ready to be written to the reference
// database as one logical update by Materialize.
type SuccessfulRebase struct {
	graph *stepgraph.Graph

	NewCommit    map[stepgraph.NodeID]gitx.OID
	Conflicted   map[stepgraph.NodeID]bool
	NewRefTarget map[string]gitx.OID
}

// CommitFor resolves selector (a Pick) to the new commit id Execute
// computed for it. Only Picks reached while resolving the build
// result's head references are in the map; a Pick that no head
// reference reaches, and any Reference or None selector, reports
// ok=false.
func (r *SuccessfulRebase) CommitFor(sel stepgraph.Selector) (gitx.OID, bool) {
	id, ok := r.NewCommit[sel.Node]
	return id, ok
}

// IsConflicted reports whether selector's replayed commit carries an
// unresolved merge.
func (r *SuccessfulRebase) IsConflicted(sel stepgraph.Selector) bool {
	return r.Conflicted[sel.Node]
}

type executor struct {
	ctx          context.Context
	repo         gitx.Repository
	graph        *stepgraph.Graph
	fallbackBase gitx.OID
	boundary     stepgraph.NodeID
	haveBoundary bool

	resolved   map[stepgraph.NodeID]gitx.OID
	conflicted map[stepgraph.NodeID]bool
	inProgress map[stepgraph.NodeID]bool
}

// Execute plans and replays result's graph, producing new commit
// objects in repo. result.BaseOID is used as a Reference step's target
// when it has no reachable Pick parent (an empty stack pointing
// directly at its target), and result.Boundary, when present, is
// always short-circuited verbatim: it stands for history outside the
// edited window and must never be rewritten even if its own original
// parent lies further back than this graph models. Execute performs
// only object writes; call Materialize on the result to update
// references.
func Execute(ctx context.Context, repo gitx.Repository, result *stepgraph.BuildResult) (*SuccessfulRebase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ex := &executor{
		ctx:          ctx,
		repo:         repo,
		graph:        result.Graph,
		fallbackBase: result.BaseOID,
		resolved:     map[stepgraph.NodeID]gitx.OID{},
		conflicted:   map[stepgraph.NodeID]bool{},
		inProgress:   map[stepgraph.NodeID]bool{},
	}
	if result.Boundary != nil {
		ex.boundary = result.Boundary.Node
		ex.haveBoundary = true
	}

	refTargets := map[string]gitx.OID{}
	for refname, sel := range result.ByRef {
		id, err := ex.resolveReference(sel)
		if err != nil {
			return nil, err
		}
		refTargets[refname] = id
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &SuccessfulRebase{
		graph:        result.Graph,
		NewCommit:    ex.resolved,
		Conflicted:   ex.conflicted,
		NewRefTarget: refTargets,
	}, nil
}

func (ex *executor) resolveReference(sel stepgraph.Selector) (gitx.OID, error) {
	target, _, err := ex.graph.FindReferenceTarget(sel)
	if err != nil {
		if loomerr.Is(err, loomerr.KindNotFound) && !ex.fallbackBase.IsZero() {
			return ex.fallbackBase, nil
		}
		return "", err
	}
	return ex.resolvePick(target)
}
