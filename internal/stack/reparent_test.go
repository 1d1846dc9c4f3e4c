package stack_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"loomstack.dev/loom/internal/stack"
	"loomstack.dev/loom/internal/stepgraph"
	"loomstack.dev/loom/testhelpers/scenario"
)

func TestReparent_SkipsOverRemovedParentToNextSurvivingAncestor(t *testing.T) {
	repo := scenario.NewRepo(t)
	base := repo.CommitFiles("base", map[string]string{"f": "0"})
	a := repo.CommitFiles("a", map[string]string{"f": "1"}, base)
	b := repo.CommitFiles("b", map[string]string{"f": "2"}, a)

	result, err := stepgraph.BuildFromHeads(repo.Git, base, []stepgraph.HeadSpec{{Refname: "main", Tip: b}})
	require.NoError(t, err)
	g := result.Graph
	refSel := result.ByRef["main"]

	bSel, err := g.SelectCommit(b)
	require.NoError(t, err)
	aSel, err := g.SelectCommit(a)
	require.NoError(t, err)

	// b is removed from the set of replayable commits (squashed away,
	// merged upstream, whatever the cause) without anything rewiring
	// the reference that used to sit directly above it.
	require.NoError(t, g.Replace(bSel, stepgraph.None()))

	parentsBefore, err := g.Parents(refSel)
	require.NoError(t, err)
	require.Len(t, parentsBefore, 1)
	require.Equal(t, bSel.Node, parentsBefore[0].Node)

	target, err := stack.Reparent(g, refSel)
	require.NoError(t, err)
	require.Equal(t, aSel.Node, target.Node)

	parentsAfter, err := g.Parents(refSel)
	require.NoError(t, err)
	require.Len(t, parentsAfter, 1)
	require.Equal(t, aSel.Node, parentsAfter[0].Node)
}

func TestReparent_NoGapIsNoop(t *testing.T) {
	repo := scenario.NewRepo(t)
	base := repo.CommitFiles("base", map[string]string{"f": "0"})
	tip := repo.CommitFiles("tip", map[string]string{"f": "1"}, base)

	result, err := stepgraph.BuildFromHeads(repo.Git, base, []stepgraph.HeadSpec{{Refname: "main", Tip: tip}})
	require.NoError(t, err)
	g := result.Graph
	refSel := result.ByRef["main"]

	tipSel, err := g.SelectCommit(tip)
	require.NoError(t, err)

	target, err := stack.Reparent(g, refSel)
	require.NoError(t, err)
	require.Equal(t, tipSel.Node, target.Node)
}
