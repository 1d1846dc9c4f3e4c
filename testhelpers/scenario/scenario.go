package scenario

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"loomstack.dev/loom/internal/gitx"
	"loomstack.dev/loom/internal/store"
	"loomstack.dev/loom/internal/tomlsync"
)

// Scenario wires a disposable repository to an in-process metadata
// store and TOML mirror, the fixture every component test builds on.
// The "engine" is whatever package under test composes these three
// pieces itself.
type Scenario struct {
	T     *testing.T
	Repo  *Repo
	Store *store.Store
	Sync  *tomlsync.Sync
	ctx   context.Context
}

// New creates an empty repository with a fresh in-memory metadata
// store and a TOML mirror path under the repo's .git directory.
func New(t *testing.T) *Scenario {
	t.Helper()
	repo := NewRepo(t)
	st, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mirrorPath := filepath.Join(repo.GitDir(), "loom", "virtual_branches.toml")
	return &Scenario{
		T:     t,
		Repo:  repo,
		Store: st,
		Sync:  tomlsync.New(st, mirrorPath),
		ctx:   context.Background(),
	}
}

// Context returns the scenario's background context, a fixed value so
// fixtures stay deterministic across calls.
func (s *Scenario) Context() context.Context { return s.ctx }

// WithInitialCommit creates a root commit holding a single README.md
// and returns its id; it moves no reference.
func (s *Scenario) WithInitialCommit() gitx.OID {
	s.T.Helper()
	return s.Repo.CommitFiles("initial commit", map[string]string{"README.md": "hello\n"})
}

// WithStack registers a single-head stack named name whose head points
// at headCommit, appended after any stacks already present.
func (s *Scenario) WithStack(name string, headCommit gitx.OID) *store.Stack {
	s.T.Helper()
	snap, err := s.Sync.ReadAndSyncSnapshot(s.ctx)
	require.NoError(s.T, err)

	stk := store.Stack{
		ID:          store.NewStackID(),
		SortOrder:   len(snap.Stacks),
		InWorkspace: true,
	}
	snap.Stacks = append(snap.Stacks, stk)
	snap.Heads = append(snap.Heads, store.StackHead{
		StackID:      stk.ID,
		Position:     0,
		Name:         name,
		HeadCommitID: string(headCommit),
	})
	require.NoError(s.T, s.Sync.WriteSnapshotAndSync(s.ctx, snap))
	return &stk
}

// Snapshot reads the current reconciled snapshot.
func (s *Scenario) Snapshot() *store.WorkspaceSnapshot {
	s.T.Helper()
	snap, err := s.Sync.ReadAndSyncSnapshot(s.ctx)
	require.NoError(s.T, err)
	return snap
}
