package stepgraph_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"loomstack.dev/loom/internal/gitx"
	"loomstack.dev/loom/internal/stepgraph"
)

// fakeRepo answers FindCommit from an in-memory map; every other
// Repository method panics since the step graph build only needs
// commit lookups.
type fakeRepo struct {
	commits map[gitx.OID]*gitx.CommitInfo
}

func newFakeRepo() *fakeRepo { return &fakeRepo{commits: map[gitx.OID]*gitx.CommitInfo{}} }

func (f *fakeRepo) add(id gitx.OID, parents ...gitx.OID) {
	f.commits[id] = &gitx.CommitInfo{ID: id, ParentIDs: parents, Message: string(id)}
}

func (f *fakeRepo) FindCommit(id gitx.OID) (*gitx.CommitInfo, error) { return f.commits[id], nil }
func (f *fakeRepo) FindTree(gitx.OID) (*gitx.Tree, error)            { panic("unused") }
func (f *fakeRepo) FindBlob(gitx.OID) ([]byte, error)                { panic("unused") }
func (f *fakeRepo) ReadReference(string) (gitx.OID, error)           { panic("unused") }
func (f *fakeRepo) WriteReferenceAtomic(string, gitx.OID, gitx.OID) error { panic("unused") }
func (f *fakeRepo) DeleteReference(string) error                     { panic("unused") }
func (f *fakeRepo) ListReferences(string) (map[string]gitx.OID, error) { panic("unused") }
func (f *fakeRepo) WriteBlob([]byte) (gitx.OID, error)                { panic("unused") }
func (f *fakeRepo) WriteTree([]gitx.TreeEntry) (gitx.OID, error)      { panic("unused") }
func (f *fakeRepo) WriteCommit(gitx.CommitSpec) (gitx.OID, error)     { panic("unused") }
func (f *fakeRepo) MergeBase(gitx.OID, gitx.OID) (gitx.OID, error)    { panic("unused") }
func (f *fakeRepo) MergeTrees(gitx.OID, gitx.OID, gitx.OID) (gitx.MergeResult, error) {
	panic("unused")
}
func (f *fakeRepo) Ancestors(gitx.OID, gitx.OID) ([]gitx.OID, error) { panic("unused") }
func (f *fakeRepo) IsAncestor(gitx.OID, gitx.OID) (bool, error)      { panic("unused") }

func linearFixture() (*fakeRepo, gitx.OID, gitx.OID, gitx.OID, gitx.OID) {
	base, a, b, c := gitx.OID("base"), gitx.OID("a"), gitx.OID("b"), gitx.OID("c")
	repo := newFakeRepo()
	repo.add(base)
	repo.add(a, base)
	repo.add(b, a)
	repo.add(c, b)
	return repo, base, a, b, c
}

func TestDisconnect_LinearRemoveMiddleCommit(t *testing.T) {
	repo, base, _, b, c := linearFixture()
	result, err := stepgraph.BuildFromHeads(repo, base, []stepgraph.HeadSpec{{Refname: "main", Tip: c}})
	require.NoError(t, err)
	g := result.Graph

	bSel, err := g.SelectCommit(b)
	require.NoError(t, err)
	aSel, err := g.SelectCommit("a")
	require.NoError(t, err)

	require.NoError(t, g.Disconnect(bSel, bSel))
	require.NoError(t, g.Replace(bSel, stepgraph.None()))

	cSel, err := g.SelectCommit(c)
	require.NoError(t, err)
	cStep, err := g.LookupStep(cSel)
	require.NoError(t, err)
	require.Equal(t, stepgraph.StepPick, cStep.Kind)

	parents, err := g.Parents(cSel)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	require.Equal(t, aSel.Node, parents[0].Node)

	target, targetStep, err := g.FindReferenceTarget(result.ByRef["main"])
	require.NoError(t, err)
	require.Equal(t, cSel.Node, target.Node)
	require.Equal(t, c, targetStep.CommitID)
}

func TestDisconnect_TwoMiddleCommitsLinear(t *testing.T) {
	repo, base, a, b, c := linearFixture()
	result, err := stepgraph.BuildFromHeads(repo, base, []stepgraph.HeadSpec{{Refname: "main", Tip: c}})
	require.NoError(t, err)
	g := result.Graph

	bSel, err := g.SelectCommit(b)
	require.NoError(t, err)
	aSel, err := g.SelectCommit(a)
	require.NoError(t, err)

	require.NoError(t, g.Disconnect(bSel, aSel))
	require.NoError(t, g.Replace(bSel, stepgraph.None()))
	require.NoError(t, g.Replace(aSel, stepgraph.None()))

	cSel, err := g.SelectCommit(c)
	require.NoError(t, err)
	parents, err := g.Parents(cSel)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	require.Equal(t, result.Boundary.Node, parents[0].Node, "c should now descend directly from the boundary (base)")

	target, _, err := g.FindReferenceTarget(result.ByRef["main"])
	require.NoError(t, err)
	require.Equal(t, cSel.Node, target.Node)
}

func TestDisconnect_MergeNodeRewiresBothChildren(t *testing.T) {
	base := gitx.OID("base")
	p1, p2 := gitx.OID("p1"), gitx.OID("p2")
	merge := gitx.OID("merge")
	c1, c2 := gitx.OID("c1"), gitx.OID("c2")

	repo := newFakeRepo()
	repo.add(base)
	repo.add(p1, base)
	repo.add(p2, base)
	repo.add(merge, p1, p2)
	repo.add(c1, merge)
	repo.add(c2, merge)

	result, err := stepgraph.BuildFromHeads(repo, base, []stepgraph.HeadSpec{
		{Refname: "c1-branch", Tip: c1},
		{Refname: "c2-branch", Tip: c2},
	})
	require.NoError(t, err)
	g := result.Graph

	mergeSel, err := g.SelectCommit(merge)
	require.NoError(t, err)
	require.NoError(t, g.Disconnect(mergeSel, mergeSel))
	require.NoError(t, g.Replace(mergeSel, stepgraph.None()))

	t1, _, err := g.FindReferenceTarget(result.ByRef["c1-branch"])
	require.NoError(t, err)
	c1Sel, err := g.SelectCommit(c1)
	require.NoError(t, err)
	require.Equal(t, c1Sel.Node, t1.Node)

	p1Sel, err := g.SelectCommit(p1)
	require.NoError(t, err)
	p2Sel, err := g.SelectCommit(p2)
	require.NoError(t, err)

	c1Parents, err := g.Parents(c1Sel)
	require.NoError(t, err)
	requireSameNodes(t, []stepgraph.Selector{p1Sel, p2Sel}, c1Parents)

	c2Sel, err := g.SelectCommit(c2)
	require.NoError(t, err)
	c2Parents, err := g.Parents(c2Sel)
	require.NoError(t, err)
	requireSameNodes(t, []stepgraph.Selector{p1Sel, p2Sel}, c2Parents)
}

func requireSameNodes(t *testing.T, want, got []stepgraph.Selector) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].Node, got[i].Node)
	}
}

func TestSelectCommit_NotInGraph(t *testing.T) {
	g := stepgraph.New()
	_, err := g.SelectCommit("missing")
	require.Error(t, err)
}

func TestInsert_Above(t *testing.T) {
	repo, base, a, _, c := linearFixture()
	result, err := stepgraph.BuildFromHeads(repo, base, []stepgraph.HeadSpec{{Refname: "main", Tip: c}})
	require.NoError(t, err)
	g := result.Graph

	aSel, err := g.SelectCommit(a)
	require.NoError(t, err)

	newStep := stepgraph.Pick("new-commit")
	newSel, err := g.Insert(aSel, newStep, stepgraph.Above)
	require.NoError(t, err)

	got, err := g.LookupStep(newSel)
	require.NoError(t, err)
	require.Equal(t, gitx.OID("new-commit"), got.CommitID)
}

func TestInsert_AtReferenceIgnoresSide(t *testing.T) {
	repo, base, _, _, c := linearFixture()
	result, err := stepgraph.BuildFromHeads(repo, base, []stepgraph.HeadSpec{{Refname: "main", Tip: c}})
	require.NoError(t, err)
	g := result.Graph

	refSel := result.ByRef["main"]
	below, err := g.Insert(refSel, stepgraph.Pick("x"), stepgraph.Below)
	require.NoError(t, err)
	above, err := g.LookupStep(below)
	require.NoError(t, err)
	require.Equal(t, gitx.OID("x"), above.CommitID)

	target, _, err := g.FindReferenceTarget(refSel)
	require.NoError(t, err)
	require.Equal(t, below.Node, target.Node)
}
