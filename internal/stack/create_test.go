package stack_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"loomstack.dev/loom/internal/gitx"
	"loomstack.dev/loom/internal/stack"
	"loomstack.dev/loom/internal/stepgraph"
	"loomstack.dev/loom/testhelpers/scenario"
)

func author() gitx.Signature {
	return gitx.Signature{Name: "Test User", Email: "test@example.com"}
}

func TestCreate_AboveAnchorParentsOnAnchorItself(t *testing.T) {
	repo := scenario.NewRepo(t)
	base := repo.CommitFiles("base", map[string]string{"base.txt": "base"})

	built, err := stepgraph.BuildFromHeads(repo.Git, base, []stepgraph.HeadSpec{{Refname: "refs/heads/main", Tip: base}})
	require.NoError(t, err)
	g := built.Graph

	baseSel, err := g.SelectCommit(base)
	require.NoError(t, err)

	changes := []stack.ChangeSpec{{Path: "new.txt", Content: []byte("hi")}}
	outcome, err := stack.Create(repo.Git, g, baseSel, stepgraph.Above, changes, "new commit", author())
	require.NoError(t, err)
	require.Empty(t, outcome.Rejected)
	require.NotNil(t, outcome.CommitSelector)

	newStep, err := g.LookupStep(*outcome.CommitSelector)
	require.NoError(t, err)
	newCommit, err := repo.Git.FindCommit(newStep.CommitID)
	require.NoError(t, err)
	require.Equal(t, []gitx.OID{base}, newCommit.ParentIDs)

	tree, err := repo.Git.FindTree(newCommit.TreeID)
	require.NoError(t, err)
	names := map[string]bool{}
	for _, e := range tree.Entries {
		names[e.Name] = true
	}
	require.True(t, names["base.txt"])
	require.True(t, names["new.txt"])

	parents, err := g.Parents(*outcome.CommitSelector)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	require.Equal(t, baseSel.Node, parents[0].Node)
}

func TestCreate_BelowAnchorParentsOnAnchorsFirstParent(t *testing.T) {
	repo := scenario.NewRepo(t)
	base := repo.CommitFiles("base", map[string]string{"base.txt": "base"})
	tip := repo.CommitFiles("tip", map[string]string{"base.txt": "base", "tip.txt": "tip"}, base)

	built, err := stepgraph.BuildFromHeads(repo.Git, base, []stepgraph.HeadSpec{{Refname: "refs/heads/main", Tip: tip}})
	require.NoError(t, err)
	g := built.Graph

	tipSel, err := g.SelectCommit(tip)
	require.NoError(t, err)

	changes := []stack.ChangeSpec{{Path: "below.txt", Content: []byte("below")}}
	outcome, err := stack.Create(repo.Git, g, tipSel, stepgraph.Below, changes, "below commit", author())
	require.NoError(t, err)
	require.NotNil(t, outcome.CommitSelector)

	newStep, err := g.LookupStep(*outcome.CommitSelector)
	require.NoError(t, err)
	newCommit, err := repo.Git.FindCommit(newStep.CommitID)
	require.NoError(t, err)
	require.Equal(t, []gitx.OID{base}, newCommit.ParentIDs)
}

func TestCreate_AtReferenceParentsOnResolvedTarget(t *testing.T) {
	repo := scenario.NewRepo(t)
	base := repo.CommitFiles("base", map[string]string{"base.txt": "base"})

	built, err := stepgraph.BuildFromHeads(repo.Git, base, []stepgraph.HeadSpec{{Refname: "refs/heads/main", Tip: base}})
	require.NoError(t, err)
	g := built.Graph

	refSel := built.ByRef["refs/heads/main"]

	changes := []stack.ChangeSpec{{Path: "new.txt", Content: []byte("hi")}}
	outcome, err := stack.Create(repo.Git, g, refSel, stepgraph.Above, changes, "new commit", author())
	require.NoError(t, err)
	require.NotNil(t, outcome.CommitSelector)

	newStep, err := g.LookupStep(*outcome.CommitSelector)
	require.NoError(t, err)
	newCommit, err := repo.Git.FindCommit(newStep.CommitID)
	require.NoError(t, err)
	require.Equal(t, []gitx.OID{base}, newCommit.ParentIDs)
}

func TestCreate_AllRejectedProducesNoCommit(t *testing.T) {
	repo := scenario.NewRepo(t)
	base := repo.CommitFiles("base", map[string]string{"base.txt": "base"})

	built, err := stepgraph.BuildFromHeads(repo.Git, base, []stepgraph.HeadSpec{{Refname: "refs/heads/main", Tip: base}})
	require.NoError(t, err)
	g := built.Graph

	baseSel, err := g.SelectCommit(base)
	require.NoError(t, err)

	changes := []stack.ChangeSpec{{Path: "missing.txt", Delete: true}}
	outcome, err := stack.Create(repo.Git, g, baseSel, stepgraph.Above, changes, "new commit", author())
	require.NoError(t, err)
	require.Len(t, outcome.Rejected, 1)
	require.Nil(t, outcome.CommitSelector)
}
