package rebase

import (
	"strings"

	"loomstack.dev/loom/internal/gitx"
	"loomstack.dev/loom/internal/loomerr"
	"loomstack.dev/loom/internal/stepgraph"
)

// resolvePick returns the new commit id for the Pick at sel, computing
// and writing it (memoized) if this is the first visit.
func (ex *executor) resolvePick(sel stepgraph.Selector) (gitx.OID, error) {
	if id, ok := ex.resolved[sel.Node]; ok {
		return id, nil
	}
	if ex.inProgress[sel.Node] {
		return "", loomerr.CorruptStatef("node", "step graph contains a cycle reachable from a pick")
	}
	ex.inProgress[sel.Node] = true
	defer delete(ex.inProgress, sel.Node)

	if err := ex.ctx.Err(); err != nil {
		return "", err
	}

	step, err := ex.graph.LookupStep(sel)
	if err != nil {
		return "", err
	}
	if step.Kind != stepgraph.StepPick {
		return "", loomerr.Validationf("node", "expected a pick step")
	}

	if ex.haveBoundary && sel.Node == ex.boundary {
		ex.resolved[sel.Node] = step.CommitID
		ex.conflicted[sel.Node] = false
		return step.CommitID, nil
	}

	orig, err := ex.repo.FindCommit(step.CommitID)
	if err != nil {
		return "", err
	}

	parentSels, err := ex.graph.Parents(sel)
	if err != nil {
		return "", err
	}
	var newParents []gitx.OID
	for _, p := range parentSels {
		ids, err := ex.resolveParentChain(p)
		if err != nil {
			return "", err
		}
		newParents = append(newParents, ids...)
	}

	unchanged := step.NewMessage == nil && sameOIDs(newParents, orig.ParentIDs)
	if unchanged {
		ex.resolved[sel.Node] = step.CommitID
		ex.conflicted[sel.Node] = false
		return step.CommitID, nil
	}

	newTree, conflicted, err := ex.buildTree(orig, newParents)
	if err != nil {
		return "", err
	}

	message := orig.Message
	if step.NewMessage != nil {
		message = *step.NewMessage
	}
	if conflicted {
		message = appendConflictTrailer(message)
	}

	newID, err := ex.repo.WriteCommit(gitx.CommitSpec{
		TreeID:    newTree,
		ParentIDs: newParents,
		Author:    orig.Author,
		Committer: orig.Committer,
		Message:   message,
	})
	if err != nil {
		return "", err
	}

	ex.resolved[sel.Node] = newID
	ex.conflicted[sel.Node] = conflicted
	return newID, nil
}

// resolveParentChain expands sel into the new commit ids it
// contributes to a child's parent list: a Pick contributes itself; a
// None step is skipped and contributes its own (recursively expanded)
// parents, in order, so a child inherits the full parent set left
// behind; a Reference should never be a structural parent but is
// handled defensively the same way a None would be.
func (ex *executor) resolveParentChain(sel stepgraph.Selector) ([]gitx.OID, error) {
	step, err := ex.graph.LookupStep(sel)
	if err != nil {
		return nil, err
	}
	switch step.Kind {
	case stepgraph.StepPick:
		id, err := ex.resolvePick(sel)
		if err != nil {
			return nil, err
		}
		return []gitx.OID{id}, nil
	default:
		parents, err := ex.graph.Parents(sel)
		if err != nil {
			return nil, err
		}
		var out []gitx.OID
		for _, p := range parents {
			ids, err := ex.resolveParentChain(p)
			if err != nil {
				return nil, err
			}
			out = append(out, ids...)
		}
		return out, nil
	}
}

// buildTree computes the replayed tree for orig given its new parent
// ids. When the parent arity changed (a merge was removed or a run
// fanned out), the original tree carries over untouched: ancestry
// moved but file content didn't. Otherwise it three-way merges the
// original parent's tree (base), the new first parent's tree (ours),
// and orig's own tree (theirs).
func (ex *executor) buildTree(orig *gitx.CommitInfo, newParents []gitx.OID) (gitx.OID, bool, error) {
	if len(newParents) != len(orig.ParentIDs) {
		return orig.TreeID, false, nil
	}
	if len(newParents) == 0 {
		return orig.TreeID, false, nil
	}

	origParentTree, err := ex.treeOf(orig.ParentIDs[0])
	if err != nil {
		return "", false, err
	}
	newParentTree, err := ex.treeOf(newParents[0])
	if err != nil {
		return "", false, err
	}

	result, err := ex.repo.MergeTrees(origParentTree, newParentTree, orig.TreeID)
	if err != nil {
		return "", false, err
	}
	if !result.Conflicted {
		return result.TreeID, false, nil
	}

	conflictTree, err := ex.buildConflictTree(origParentTree, newParentTree, orig.TreeID, result.TreeID)
	if err != nil {
		return "", false, err
	}
	return conflictTree, true, nil
}

func (ex *executor) treeOf(commitID gitx.OID) (gitx.OID, error) {
	c, err := ex.repo.FindCommit(commitID)
	if err != nil {
		return "", err
	}
	return c.TreeID, nil
}

// buildConflictTree assembles the structured tree a conflict-carrying
// commit points at: the best-effort auto-resolution plus both
// original sides, so a later tool can re-present the conflict without
// re-running the merge.
func (ex *executor) buildConflictTree(base, ours, theirs, autoResolution gitx.OID) (gitx.OID, error) {
	entries := []gitx.TreeEntry{
		{Name: ".auto-resolution", Mode: gitx.ModeDir, ID: autoResolution},
		{Name: ".conflict-base-0", Mode: gitx.ModeDir, ID: base},
		{Name: ".conflict-side-0", Mode: gitx.ModeDir, ID: ours},
		{Name: ".conflict-side-1", Mode: gitx.ModeDir, ID: theirs},
	}
	return ex.repo.WriteTree(entries)
}

func sameOIDs(a, b []gitx.OID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func appendConflictTrailer(message string) string {
	trimmed := strings.TrimRight(message, "\n")
	return trimmed + "\n\n" + conflictHeaderTrailer + "\n"
}
