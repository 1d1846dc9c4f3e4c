package tomlsync_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"loomstack.dev/loom/internal/store"
	"loomstack.dev/loom/internal/tomlsync"
)

func newTestSync(t *testing.T) (*tomlsync.Sync, string, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "virtual_branches.toml")
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return tomlsync.New(st, path), path, st
}

func TestReadAndSync_UninitializedWithNoFileWritesEmpty(t *testing.T) {
	sync, path, _ := newTestSync(t)

	st, err := sync.ReadAndSync(context.Background())
	require.NoError(t, err)
	require.True(t, st.Initialized)
	require.FileExists(t, path)
}

func TestReadAndSync_ImportsExistingFileOnFirstRead(t *testing.T) {
	sync, path, _ := newTestSync(t)

	content := `
[default_target]
remote = "origin"
branch = "main"
remoteUrl = "git@example.com:r.git"
commitId = "abc123"

[branches.s1]
sortOrder = 0
inWorkspace = true

[[branches.s1.heads]]
position = 0
name = "feature"
headCommitId = "deadbeef"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	snap, err := sync.ReadAndSyncSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Stacks, 1)
	require.Equal(t, "s1", snap.Stacks[0].ID)
	require.True(t, snap.State.HasDefaultTarget())
}

func TestSync_FileNewerWinsPerScenario5(t *testing.T) {
	sync, path, _ := newTestSync(t)

	ctx := context.Background()
	// Establish initial state with S1.
	_, err := sync.ReadAndSync(ctx)
	require.NoError(t, err)
	snap, err := sync.ReadAndSyncSnapshot(ctx)
	require.NoError(t, err)
	snap.Stacks = append(snap.Stacks, store.Stack{ID: "s1", SortOrder: 0, InWorkspace: true})
	require.NoError(t, sync.WriteSnapshotAndSync(ctx, snap))

	// Edit the file directly, adding S2, and make sure its mtime is newer.
	time.Sleep(10 * time.Millisecond)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	edited := string(content) + "\n[branches.s2]\nsortOrder = 1\ninWorkspace = true\n"
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.WriteFile(path, []byte(edited), 0o600))
	require.NoError(t, os.Chtimes(path, future, future))

	got, err := sync.ReadAndSyncSnapshot(ctx)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, s := range got.Stacks {
		ids[s.ID] = true
	}
	require.True(t, ids["s1"])
	require.True(t, ids["s2"])
}

func TestSync_NoOpWhenUnchanged(t *testing.T) {
	sync, _, _ := newTestSync(t)
	ctx := context.Background()

	_, err := sync.ReadAndSync(ctx)
	require.NoError(t, err)

	snap1, err := sync.ReadAndSyncSnapshot(ctx)
	require.NoError(t, err)
	snap2, err := sync.ReadAndSyncSnapshot(ctx)
	require.NoError(t, err)

	require.Equal(t, snap1.State.TOMLSHA256, snap2.State.TOMLSHA256)
	require.Equal(t, snap1.State.TOMLMtimeNS, snap2.State.TOMLMtimeNS)
}

func TestWriteAndSync_UpdatesStateAndRewritesMirror(t *testing.T) {
	sync, path, st := newTestSync(t)
	ctx := context.Background()

	_, err := sync.ReadAndSync(ctx)
	require.NoError(t, err)

	pushed := "cafef00d"
	require.NoError(t, sync.WriteAndSync(ctx, &store.WorkspaceState{
		Initialized:            true,
		LastPushedBaseCommitID: &pushed,
	}))

	snap, err := st.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.State.LastPushedBaseCommitID)
	require.Equal(t, pushed, *snap.State.LastPushedBaseCommitID)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(content), pushed)
}

func TestForceImportFromFile_OverwritesStoreFromMirror(t *testing.T) {
	sync, path, st := newTestSync(t)
	ctx := context.Background()

	content := `
[branches.s1]
sortOrder = 0
inWorkspace = true

[[branches.s1.heads]]
position = 0
name = "feature"
headCommitId = "deadbeef"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	require.NoError(t, sync.ForceImportFromFile(ctx))

	snap, err := st.ReadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, snap.State.Initialized)
	require.NotNil(t, snap.State.TOMLSHA256)
	require.Len(t, snap.Stacks, 1)
	require.Equal(t, "s1", snap.Stacks[0].ID)
	require.Len(t, snap.Heads, 1)
	require.Equal(t, "deadbeef", snap.Heads[0].HeadCommitID)
}

func TestForceImportFromFile_RejectsUnparseableFile(t *testing.T) {
	sync, path, _ := newTestSync(t)

	require.NoError(t, os.WriteFile(path, []byte("not = valid = toml = ["), 0o600))

	err := sync.ForceImportFromFile(context.Background())
	require.Error(t, err)
}

func TestDirectoryMissing(t *testing.T) {
	require.True(t, tomlsync.DirectoryMissing("/nonexistent-root/sub/virtual_branches.toml"))

	dir := t.TempDir()
	require.False(t, tomlsync.DirectoryMissing(filepath.Join(dir, "virtual_branches.toml")))
}
