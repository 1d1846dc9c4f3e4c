package stack

import (
	"loomstack.dev/loom/internal/gitx"
	"loomstack.dev/loom/internal/loomerr"
	"loomstack.dev/loom/internal/rebase"
	"loomstack.dev/loom/internal/stepgraph"
)

// AmendOutcome is the result of Amend: the amended commit's selector
// (nil if every change was rejected, leaving the original commit in
// place) plus any rejected specs.
type AmendOutcome struct {
	CommitSelector *stepgraph.Selector
	Rejected       []Rejected
}

// Amend replaces target's tree with the result of applying changes
// against its current tree, preserving message and authorship.
// Conflicted commits may not be amended. Graph edits are left in graph
// for the caller to replay with rebase.Execute, so an amend cascades
// to every descendant whose tree depends on the amended content.
func Amend(repo gitx.Repository, graph *stepgraph.Graph, target stepgraph.Selector, changes []ChangeSpec) (AmendOutcome, error) {
	sel, step, err := graph.FindSelectableCommit(target)
	if err != nil {
		return AmendOutcome{}, err
	}

	orig, err := repo.FindCommit(step.CommitID)
	if err != nil {
		return AmendOutcome{}, err
	}
	if rebase.IsConflictMarked(orig.Message) {
		return AmendOutcome{}, loomerr.Validationf(string(step.CommitID), "cannot amend a conflicted commit")
	}

	newTree, rejected, err := ApplyChanges(repo, orig.TreeID, changes)
	if err != nil {
		return AmendOutcome{}, err
	}
	if len(rejected) == len(changes) {
		return AmendOutcome{Rejected: rejected}, nil
	}

	newID, err := repo.WriteCommit(gitx.CommitSpec{
		TreeID:    newTree,
		ParentIDs: orig.ParentIDs,
		Author:    orig.Author,
		Committer: orig.Committer,
		Message:   orig.Message,
	})
	if err != nil {
		return AmendOutcome{}, err
	}

	if err := graph.Replace(sel, stepgraph.Pick(newID)); err != nil {
		return AmendOutcome{}, err
	}

	return AmendOutcome{CommitSelector: &sel, Rejected: rejected}, nil
}
