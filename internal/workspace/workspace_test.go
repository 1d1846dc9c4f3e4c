package workspace_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"loomstack.dev/loom/internal/loomerr"
	"loomstack.dev/loom/internal/store"
	"loomstack.dev/loom/internal/workspace"
	"loomstack.dev/loom/testhelpers/scenario"
)

func openWorkspace(t *testing.T, repo *scenario.Repo) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.Open(repo.Dir, testAuthor())
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func seedStack(t *testing.T, ws *workspace.Workspace, stackID string, tip string) {
	t.Helper()
	_, err := ws.Mutate(context.Background(), "seed", func(snap *store.WorkspaceSnapshot) (*store.WorkspaceSnapshot, error) {
		snap.Stacks = append(snap.Stacks, store.Stack{ID: stackID, SortOrder: 0, InWorkspace: true})
		snap.Heads = append(snap.Heads, store.StackHead{StackID: stackID, Position: 0, HeadCommitID: tip})
		return snap, nil
	})
	require.NoError(t, err)
}

func TestWorkspace_MutateCommitsStoreMirrorAndRef(t *testing.T) {
	repo := scenario.NewRepo(t)
	tip := repo.CommitFiles("only", map[string]string{"a.txt": "a"})
	ws := openWorkspace(t, repo)

	seedStack(t, ws, "s1", string(tip))

	snap, err := ws.Store.ReadSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Stacks, 1)
	require.Equal(t, "s1", snap.Stacks[0].ID)
	require.True(t, snap.Stacks[0].InWorkspace)

	_, err = os.Stat(ws.Config.MirrorPathOrDefault(ws.RepoRoot))
	require.NoError(t, err, "mirror file should have been written")

	refID, err := ws.Repo.ReadReference(ws.Config.WorkspaceRefOrDefault())
	require.NoError(t, err)

	commit, err := ws.Repo.FindCommit(refID)
	require.NoError(t, err)
	require.Equal(t, []string{string(tip)}, oidStrings(commit.ParentIDs))

	infos, err := ws.Oplog.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
}

func TestWorkspace_MutateFailureLeavesStoreUnchanged(t *testing.T) {
	repo := scenario.NewRepo(t)
	tip := repo.CommitFiles("only", map[string]string{"a.txt": "a"})
	ws := openWorkspace(t, repo)
	seedStack(t, ws, "s1", string(tip))

	before, err := ws.Store.ReadSnapshot(context.Background())
	require.NoError(t, err)

	_, err = ws.Mutate(context.Background(), "break", func(snap *store.WorkspaceSnapshot) (*store.WorkspaceSnapshot, error) {
		snap.Stacks = append(snap.Stacks, store.Stack{ID: "doomed"})
		return nil, loomerr.Validationf("doomed", "intentional failure")
	})
	require.Error(t, err)

	after, err := ws.Store.ReadSnapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, before.Stacks, after.Stacks)
	require.Equal(t, before.Heads, after.Heads)
}

func TestWorkspace_ApplyUnapplyToggleInWorkspace(t *testing.T) {
	repo := scenario.NewRepo(t)
	tip := repo.CommitFiles("only", map[string]string{"a.txt": "a"})
	ws := openWorkspace(t, repo)

	_, err := ws.Mutate(context.Background(), "seed", func(snap *store.WorkspaceSnapshot) (*store.WorkspaceSnapshot, error) {
		snap.Stacks = append(snap.Stacks, store.Stack{ID: "s1", SortOrder: 0, InWorkspace: false})
		snap.Heads = append(snap.Heads, store.StackHead{StackID: "s1", Position: 0, HeadCommitID: string(tip)})
		return snap, nil
	})
	require.NoError(t, err)

	snap, err := ws.Apply(context.Background(), "s1")
	require.NoError(t, err)
	require.True(t, snap.Stacks[0].InWorkspace)

	snap, err = ws.Unapply(context.Background(), "s1")
	require.NoError(t, err)
	require.False(t, snap.Stacks[0].InWorkspace)
}

func TestWorkspace_PushPolicyDerivesFromConfigAndState(t *testing.T) {
	repo := scenario.NewRepo(t)
	ws := openWorkspace(t, repo)

	tip := repo.CommitFiles("only", map[string]string{"a.txt": "a"})
	tipStr := string(tip)
	snap := &store.WorkspaceSnapshot{State: store.WorkspaceState{LastPushedBaseCommitID: &tipStr}}

	policy := ws.PushPolicy(snap)
	require.False(t, policy.ForcePushAllowed)
	require.Equal(t, tip, policy.PushedBoundary)

	allowed := true
	ws.Config.ForcePushAllowed = &allowed
	policy = ws.PushPolicy(snap)
	require.True(t, policy.ForcePushAllowed)
}

func TestWorkspace_ApplyUnknownStackReturnsNotFound(t *testing.T) {
	repo := scenario.NewRepo(t)
	ws := openWorkspace(t, repo)

	_, err := ws.Apply(context.Background(), "missing")
	require.Error(t, err)
	require.True(t, loomerr.Is(err, loomerr.KindNotFound))

	_, err = ws.Unapply(context.Background(), "missing")
	require.Error(t, err)
	require.True(t, loomerr.Is(err, loomerr.KindNotFound))
}
