package stack

import (
	"loomstack.dev/loom/internal/gitx"
	"loomstack.dev/loom/internal/stepgraph"
)

// CreateOutcome is the result of Create: the new commit's selector
// (nil if every change was rejected, in which case no commit was
// produced but the caller's graph is otherwise untouched) plus any
// rejected specs.
type CreateOutcome struct {
	CommitSelector *stepgraph.Selector
	Rejected       []Rejected
}

// Create builds a fresh commit from changes and inserts it at side of
// relativeTo, returning the new commit's selector. If all changes are
// rejected no commit is produced: the graph is left exactly as it was,
// ready for the caller to retry or proceed.
func Create(repo gitx.Repository, graph *stepgraph.Graph, relativeTo stepgraph.Selector, side stepgraph.Side, changes []ChangeSpec, message string, author gitx.Signature) (CreateOutcome, error) {
	parentOID, err := parentForInsert(graph, repo, relativeTo, side)
	if err != nil {
		return CreateOutcome{}, err
	}

	var baseTree gitx.OID
	var parents []gitx.OID
	if !parentOID.IsZero() {
		parentCommit, err := repo.FindCommit(parentOID)
		if err != nil {
			return CreateOutcome{}, err
		}
		baseTree = parentCommit.TreeID
		parents = []gitx.OID{parentOID}
	}

	newTree, rejected, err := ApplyChanges(repo, baseTree, changes)
	if err != nil {
		return CreateOutcome{}, err
	}
	if len(rejected) == len(changes) {
		return CreateOutcome{Rejected: rejected}, nil
	}

	newID, err := repo.WriteCommit(gitx.CommitSpec{
		TreeID:    newTree,
		ParentIDs: parents,
		Author:    author,
		Committer: author,
		Message:   message,
	})
	if err != nil {
		return CreateOutcome{}, err
	}

	sel, err := graph.Insert(relativeTo, stepgraph.Pick(newID), side)
	if err != nil {
		return CreateOutcome{}, err
	}

	return CreateOutcome{CommitSelector: &sel, Rejected: rejected}, nil
}

// parentForInsert determines the git parent a new commit inserted at
// side of relativeTo should have: a Pick anchor taken Above parents on
// the anchor itself, taken Below parents on the anchor's own first
// parent; a Reference anchor always parents on its resolved target
// regardless of side; a None anchor has no parent.
func parentForInsert(graph *stepgraph.Graph, repo gitx.Repository, relativeTo stepgraph.Selector, side stepgraph.Side) (gitx.OID, error) {
	step, err := graph.LookupStep(relativeTo)
	if err != nil {
		return "", err
	}
	switch step.Kind {
	case stepgraph.StepPick:
		if side == stepgraph.Above {
			return step.CommitID, nil
		}
		commit, err := repo.FindCommit(step.CommitID)
		if err != nil {
			return "", err
		}
		if len(commit.ParentIDs) == 0 {
			return "", nil
		}
		return commit.ParentIDs[0], nil

	case stepgraph.StepReference:
		_, targetStep, err := graph.FindReferenceTarget(relativeTo)
		if err != nil {
			return "", err
		}
		return targetStep.CommitID, nil

	default: // StepNone
		return "", nil
	}
}
