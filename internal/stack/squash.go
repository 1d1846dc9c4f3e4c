package stack

import (
	"strings"

	"loomstack.dev/loom/internal/gitx"
	"loomstack.dev/loom/internal/loomerr"
	"loomstack.dev/loom/internal/rebase"
	"loomstack.dev/loom/internal/stepgraph"
)

type resolvedSource struct {
	sel    stepgraph.Selector
	commit *gitx.CommitInfo
}

// Squash merges sources into destination: each source's own diff
// (relative to its own first parent) is folded into destination's tree
// in list order, their messages are concatenated destination-first,
// and a single new commit replaces destination while the sources are
// dropped from the graph. Any reference that named a dropped source is
// carried forward onto destination rather than left to fall back on
// whatever remains below the source, since its content moved forward
// into destination, not away. Preconditions: destination and every
// source resolve to an unconflicted Pick; none is the same node as
// destination; if policy.ForcePushAllowed is false, none of them may
// already be pushed (at or behind policy.PushedBoundary).
//
// destination keeps its existing graph position: the new commit's
// parents are whatever remains structurally below destination once the
// sources are disconnected, computed from the graph after disconnect
// rather than read off destination's pre-squash commit object, since
// that object's own parent may itself be one of the dropped sources.
func Squash(repo gitx.Repository, graph *stepgraph.Graph, sources []stepgraph.Selector, destination stepgraph.Selector, policy PushPolicy) (stepgraph.Selector, error) {
	destSel, destStep, err := graph.FindSelectableCommit(destination)
	if err != nil {
		return stepgraph.Selector{}, err
	}
	destCommit, err := repo.FindCommit(destStep.CommitID)
	if err != nil {
		return stepgraph.Selector{}, err
	}
	if rebase.IsConflictMarked(destCommit.Message) {
		return stepgraph.Selector{}, loomerr.Validationf(string(destStep.CommitID), "cannot squash into a conflicted destination")
	}
	if !policy.ForcePushAllowed {
		pushed, err := isPushed(repo, policy, destStep.CommitID)
		if err != nil {
			return stepgraph.Selector{}, err
		}
		if pushed {
			return stepgraph.Selector{}, loomerr.Validationf(string(destStep.CommitID), "cannot squash a pushed destination commit while force-push is disallowed")
		}
	}

	resolved := make([]resolvedSource, 0, len(sources))
	for _, s := range sources {
		sel, step, err := graph.FindSelectableCommit(s)
		if err != nil {
			return stepgraph.Selector{}, err
		}
		if sel.Node == destSel.Node {
			return stepgraph.Selector{}, loomerr.Validationf(string(step.CommitID), "cannot squash a commit into itself")
		}
		commit, err := repo.FindCommit(step.CommitID)
		if err != nil {
			return stepgraph.Selector{}, err
		}
		if rebase.IsConflictMarked(commit.Message) {
			return stepgraph.Selector{}, loomerr.Validationf(string(step.CommitID), "cannot squash a conflicted source commit")
		}
		if !policy.ForcePushAllowed {
			pushed, err := isPushed(repo, policy, step.CommitID)
			if err != nil {
				return stepgraph.Selector{}, err
			}
			if pushed {
				return stepgraph.Selector{}, loomerr.Validationf(string(step.CommitID), "cannot squash a pushed source commit while force-push is disallowed")
			}
		}
		resolved = append(resolved, resolvedSource{sel: sel, commit: commit})
	}

	mergedTree := destCommit.TreeID
	for _, s := range resolved {
		if len(s.commit.ParentIDs) == 0 {
			return stepgraph.Selector{}, loomerr.Validationf(string(s.commit.ID), "source commit has no parent to diff against")
		}
		parentCommit, err := repo.FindCommit(s.commit.ParentIDs[0])
		if err != nil {
			return stepgraph.Selector{}, err
		}
		result, err := repo.MergeTrees(parentCommit.TreeID, mergedTree, s.commit.TreeID)
		if err != nil {
			return stepgraph.Selector{}, err
		}
		if result.Conflicted {
			return stepgraph.Selector{}, loomerr.Validationf(string(s.commit.ID), "squash produced a merge conflict")
		}
		mergedTree = result.TreeID
	}

	var messages []string
	if strings.TrimSpace(destCommit.Message) != "" {
		messages = append(messages, destCommit.Message)
	}
	for _, s := range resolved {
		if strings.TrimSpace(s.commit.Message) != "" {
			messages = append(messages, s.commit.Message)
		}
	}

	// Detach each source, carrying forward any reference that named it.
	for _, s := range resolved {
		children, err := graph.Children(s.sel)
		if err != nil {
			return stepgraph.Selector{}, err
		}
		var refsOnSource []stepgraph.Selector
		for _, c := range children {
			childStep, err := graph.LookupStep(c)
			if err != nil {
				return stepgraph.Selector{}, err
			}
			if childStep.Kind == stepgraph.StepReference {
				refsOnSource = append(refsOnSource, c)
			}
		}

		if err := graph.Disconnect(s.sel, s.sel); err != nil {
			return stepgraph.Selector{}, err
		}
		if err := graph.Replace(s.sel, stepgraph.None()); err != nil {
			return stepgraph.Selector{}, err
		}
		for _, r := range refsOnSource {
			if err := graph.RepointReference(r, destSel); err != nil {
				return stepgraph.Selector{}, err
			}
		}
	}

	newParentSels, err := graph.Parents(destSel)
	if err != nil {
		return stepgraph.Selector{}, err
	}
	newParents := make([]gitx.OID, 0, len(newParentSels))
	for _, p := range newParentSels {
		pStep, err := graph.LookupStep(p)
		if err != nil {
			return stepgraph.Selector{}, err
		}
		newParents = append(newParents, pStep.CommitID)
	}

	newID, err := repo.WriteCommit(gitx.CommitSpec{
		TreeID:    mergedTree,
		ParentIDs: newParents,
		Author:    destCommit.Author,
		Committer: destCommit.Committer,
		Message:   strings.Join(messages, "\n"),
	})
	if err != nil {
		return stepgraph.Selector{}, err
	}

	if err := graph.Replace(destSel, stepgraph.Pick(newID)); err != nil {
		return stepgraph.Selector{}, err
	}
	return destSel, nil
}
