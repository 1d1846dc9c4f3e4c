package stack_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"loomstack.dev/loom/internal/gitx"
	"loomstack.dev/loom/internal/rebase"
	"loomstack.dev/loom/internal/stack"
	"loomstack.dev/loom/internal/store"
)

func TestHeads_OmitEmptyDropsHeadMatchingBelow(t *testing.T) {
	snapshot := &store.WorkspaceSnapshot{
		Heads: []store.StackHead{
			{StackID: "s1", Position: 0, Name: "top", HeadCommitID: "aaa"}, // same tip as "mid" below it: empty
			{StackID: "s1", Position: 1, Name: "mid", HeadCommitID: "aaa"},
			{StackID: "s1", Position: 2, Name: "bottom", HeadCommitID: "bbb"}, // same tip as the target: empty
		},
	}
	target := gitx.OID("bbb")

	out := stack.Heads(snapshot, "s1", true, &target)
	require.Len(t, out, 1)
	require.Equal(t, "mid", out[0].Name)
	require.Equal(t, "aaa", out[0].HeadCommitID)
}

func TestHeads_BottommostEmptyAgainstTarget(t *testing.T) {
	snapshot := &store.WorkspaceSnapshot{
		Heads: []store.StackHead{
			{StackID: "s1", Position: 0, Name: "only", HeadCommitID: "bbb"},
		},
	}
	target := gitx.OID("bbb")

	out := stack.Heads(snapshot, "s1", true, &target)
	require.Empty(t, out)
}

func TestHeads_NoTargetNeverFiltersBottommost(t *testing.T) {
	snapshot := &store.WorkspaceSnapshot{
		Heads: []store.StackHead{
			{StackID: "s1", Position: 0, Name: "only", HeadCommitID: "bbb"},
		},
	}

	out := stack.Heads(snapshot, "s1", true, nil)
	require.Len(t, out, 1)
}

func TestHeads_WithoutOmitEmptyReturnsAll(t *testing.T) {
	snapshot := &store.WorkspaceSnapshot{
		Heads: []store.StackHead{
			{StackID: "s1", Position: 0, Name: "top", HeadCommitID: "aaa"},
			{StackID: "s1", Position: 1, Name: "mid", HeadCommitID: "aaa"},
		},
	}

	out := stack.Heads(snapshot, "s1", false, nil)
	require.Len(t, out, 2)
}

func TestApplyRebaseResult_AdvancesMatchingHeads(t *testing.T) {
	heads := []store.StackHead{
		{StackID: "s1", Position: 0, Name: "top", HeadCommitID: "old-top"},
		{StackID: "s1", Position: 1, Name: "bottom", HeadCommitID: "old-bottom"},
	}
	specs := stack.HeadSpecs("s1", heads)
	require.Len(t, specs, 2)

	result := &rebase.SuccessfulRebase{
		NewRefTarget: map[string]gitx.OID{
			specs[0].Refname: "new-top",
		},
	}

	out := stack.ApplyRebaseResult("s1", heads, result)
	require.Equal(t, "new-top", out[0].HeadCommitID)
	require.Equal(t, "old-bottom", out[1].HeadCommitID, "head with no entry in NewRefTarget is left unchanged")
}
