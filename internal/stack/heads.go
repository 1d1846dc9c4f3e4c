package stack

import (
	"loomstack.dev/loom/internal/gitx"
	"loomstack.dev/loom/internal/rebase"
	"loomstack.dev/loom/internal/stepgraph"
	"loomstack.dev/loom/internal/store"
)

// Heads returns stackID's heads from snapshot, ordered tip-first (the
// order ReadSnapshot's query already guarantees). When omitEmpty is
// set, a head is dropped if its tip equals the tip of the head
// immediately below it, or, for the bottommost head, equals target's
// commit id. A stack with no configured target never treats its
// bottommost head as empty: the filter only applies when there is
// something concrete to compare against.
func Heads(snapshot *store.WorkspaceSnapshot, stackID string, omitEmpty bool, target *gitx.OID) []store.StackHead {
	heads := snapshot.HeadsForStack(stackID)
	if !omitEmpty {
		return heads
	}

	out := make([]store.StackHead, 0, len(heads))
	for i, h := range heads {
		var below gitx.OID
		haveBelow := true
		if i == len(heads)-1 {
			if target == nil {
				haveBelow = false
			} else {
				below = *target
			}
		} else {
			below = gitx.OID(heads[i+1].HeadCommitID)
		}
		if haveBelow && gitx.OID(h.HeadCommitID) == below {
			continue
		}
		out = append(out, h)
	}
	return out
}

// headKey is the synthetic Reference refname a stack head is tracked
// under in the step graph, distinct from any real git branch refname
// so the two kinds of reference never collide when a stack is also
// mirrored to real branches.
func headKey(stackID string, name string) string {
	return "loom-head:" + stackID + "/" + name
}

// HeadSpecs builds one stepgraph.HeadSpec per head, keyed by headKey,
// ready to pass to stepgraph.BuildFromHeads.
func HeadSpecs(stackID string, heads []store.StackHead) []stepgraph.HeadSpec {
	specs := make([]stepgraph.HeadSpec, len(heads))
	for i, h := range heads {
		specs[i] = stepgraph.HeadSpec{Refname: headKey(stackID, h.Name), Tip: gitx.OID(h.HeadCommitID)}
	}
	return specs
}

// ApplyRebaseResult returns heads with each HeadCommitID updated
// in-place from result's selector-to-commit-id map: after a rebase,
// heads advance to wherever the executor placed their tracked commit.
func ApplyRebaseResult(stackID string, heads []store.StackHead, result *rebase.SuccessfulRebase) []store.StackHead {
	out := make([]store.StackHead, len(heads))
	for i, h := range heads {
		out[i] = h
		if newTip, ok := result.NewRefTarget[headKey(stackID, h.Name)]; ok {
			out[i].HeadCommitID = string(newTip)
		}
	}
	return out
}
