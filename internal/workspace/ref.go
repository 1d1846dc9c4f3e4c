package workspace

import (
	"sort"

	"loomstack.dev/loom/internal/gitx"
	"loomstack.dev/loom/internal/store"
)

// workspaceCommitMessage is the fixed, recognizable subject stamped on
// every refreshed workspace commit, a synthetic merge point rather than
// a commit a user authored.
const workspaceCommitMessage = "loom workspace commit"

// appliedTips returns the tip commit id of every applied stack's
// topmost (position-0) head, in (sort_order, id) order — the parent-set
// ordering the octopus-merge-like workspace commit uses.
func appliedTips(snap *store.WorkspaceSnapshot) []string {
	type entry struct {
		stack store.Stack
		tip   string
	}
	var entries []entry
	for _, s := range snap.Stacks {
		if !s.InWorkspace {
			continue
		}
		heads := snap.HeadsForStack(s.ID)
		if len(heads) == 0 {
			continue
		}
		entries = append(entries, entry{stack: s, tip: heads[0].HeadCommitID})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].stack.SortOrder != entries[j].stack.SortOrder {
			return entries[i].stack.SortOrder < entries[j].stack.SortOrder
		}
		return entries[i].stack.ID < entries[j].stack.ID
	})
	tips := make([]string, len(entries))
	for i, e := range entries {
		tips[i] = e.tip
	}
	return tips
}

// buildWorkspaceTree folds each applied stack's tip tree into a single
// tree, merging each subsequent tip against the previous one's merge
// base so independent stacks' non-overlapping changes combine cleanly.
// Conflicts are resolved ours-biased, same as any other MergeTrees
// call: the workspace tree is a structural convenience for checkout,
// not a record a user edits directly.
func buildWorkspaceTree(repo gitx.Repository, tips []gitx.OID) (gitx.OID, error) {
	if len(tips) == 0 {
		return repo.WriteTree(nil)
	}

	firstCommit, err := repo.FindCommit(tips[0])
	if err != nil {
		return "", err
	}
	tree := firstCommit.TreeID
	prevTip := tips[0]

	for _, tip := range tips[1:] {
		tipCommit, err := repo.FindCommit(tip)
		if err != nil {
			return "", err
		}

		baseTree := gitx.OID("")
		base, err := repo.MergeBase(prevTip, tip)
		if err != nil {
			return "", err
		}
		if !base.IsZero() {
			baseCommit, err := repo.FindCommit(base)
			if err != nil {
				return "", err
			}
			baseTree = baseCommit.TreeID
		} else {
			baseTree, err = repo.WriteTree(nil)
			if err != nil {
				return "", err
			}
		}

		result, err := repo.MergeTrees(baseTree, tree, tipCommit.TreeID)
		if err != nil {
			return "", err
		}
		tree = result.TreeID
		prevTip = tip
	}
	return tree, nil
}

// RefreshWorkspaceRef recomputes the workspace commit from snap's
// applied stacks and moves refname to it, creating it if absent.
// Returns the zero OID without writing anything if no stack is
// applied.
func RefreshWorkspaceRef(repo gitx.Repository, refname string, snap *store.WorkspaceSnapshot, author gitx.Signature) (gitx.OID, error) {
	tipStrs := appliedTips(snap)
	if len(tipStrs) == 0 {
		return "", nil
	}
	tips := make([]gitx.OID, len(tipStrs))
	for i, s := range tipStrs {
		tips[i] = gitx.OID(s)
	}

	tree, err := buildWorkspaceTree(repo, tips)
	if err != nil {
		return "", err
	}

	old, err := repo.ReadReference(refname)
	if err != nil {
		old = ""
	}

	newID, err := repo.WriteCommit(gitx.CommitSpec{
		TreeID:    tree,
		ParentIDs: tips,
		Author:    author,
		Committer: author,
		Message:   workspaceCommitMessage,
	})
	if err != nil {
		return "", err
	}

	if err := repo.WriteReferenceAtomic(refname, old, newID); err != nil {
		return "", err
	}
	return newID, nil
}
