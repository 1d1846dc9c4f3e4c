// Package scenario builds disposable git repositories and wired-up
// engine components for tests, composed directly on top of internal/gitx
// so fixtures need no external git binary.
package scenario

import (
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/require"

	"loomstack.dev/loom/internal/gitx"
)

// Repo is a throwaway git repository backed by go-git, opened through
// the same gitx.Repository adapter production code uses.
type Repo struct {
	t    *testing.T
	Dir  string
	Git  *gitx.GoGitRepository
	sig  gitx.Signature
	seq  int
}

// NewRepo initializes an empty repository in a t.TempDir().
func NewRepo(t *testing.T) *Repo {
	t.Helper()
	dir := t.TempDir()
	_, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	g, err := gitx.Open(dir)
	require.NoError(t, err)
	return &Repo{
		t:   t,
		Dir: dir,
		Git: g,
		sig: gitx.Signature{Name: "Test User", Email: "test@example.com", When: time.Unix(1700000000, 0).UTC()},
	}
}

// nextTime hands out strictly increasing commit timestamps so history
// ordering in assertions is deterministic.
func (r *Repo) nextTime() time.Time {
	r.seq++
	return r.sig.When.Add(time.Duration(r.seq) * time.Minute)
}

// Blob writes content as a blob and returns its id.
func (r *Repo) Blob(content string) gitx.OID {
	r.t.Helper()
	id, err := r.Git.WriteBlob([]byte(content))
	require.NoError(r.t, err)
	return id
}

// Tree builds a single-level tree from a path->content map. Paths
// containing "/" are rejected; callers needing nested trees should
// compose WriteTree calls directly through r.Git.
func (r *Repo) Tree(files map[string]string) gitx.OID {
	r.t.Helper()
	var entries []gitx.TreeEntry
	for name, content := range files {
		require.NotContains(r.t, name, "/", "Tree builds single-level trees only")
		entries = append(entries, gitx.TreeEntry{Name: name, Mode: gitx.ModeFile, ID: r.Blob(content)})
	}
	id, err := r.Git.WriteTree(entries)
	require.NoError(r.t, err)
	return id
}

// Commit writes a commit object over tree with the given parents.
func (r *Repo) Commit(message string, tree gitx.OID, parents ...gitx.OID) gitx.OID {
	r.t.Helper()
	sig := r.sig
	sig.When = r.nextTime()
	id, err := r.Git.WriteCommit(gitx.CommitSpec{
		TreeID:    tree,
		ParentIDs: parents,
		Author:    sig,
		Committer: sig,
		Message:   message,
	})
	require.NoError(r.t, err)
	return id
}

// CommitFiles is Tree+Commit in one call, the common case for building
// linear fixture history.
func (r *Repo) CommitFiles(message string, files map[string]string, parents ...gitx.OID) gitx.OID {
	r.t.Helper()
	return r.Commit(message, r.Tree(files), parents...)
}

// SetRef points a reference directly at id, creating it if absent.
func (r *Repo) SetRef(name string, id gitx.OID) {
	r.t.Helper()
	require.NoError(r.t, r.Git.WriteReferenceAtomic(name, "", id))
}

// GitDir returns the .git directory path, mirroring the layout
// production code expects a repo root to have.
func (r *Repo) GitDir() string {
	return filepath.Join(r.Dir, ".git")
}
