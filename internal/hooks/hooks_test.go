package hooks_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"loomstack.dev/loom/internal/hooks"
	"loomstack.dev/loom/testhelpers/scenario"
)

func writeHook(t *testing.T, gitDir, name, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("hook scripts require a POSIX shell")
	}
	dir := filepath.Join(gitDir, "hooks")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
}

func newGitDir(t *testing.T) (workDir, gitDir string) {
	workDir = t.TempDir()
	gitDir = filepath.Join(workDir, ".git")
	require.NoError(t, os.MkdirAll(gitDir, 0o755))
	return
}

func TestRunPostCommit_NotConfiguredWhenAbsent(t *testing.T) {
	workDir, gitDir := newGitDir(t)
	r := hooks.NewRunner(workDir, gitDir)

	outcome, err := r.RunPostCommit(context.Background())
	require.NoError(t, err)
	require.Equal(t, hooks.NotConfigured, outcome.Status)
}

func TestRunPostCommit_Failure(t *testing.T) {
	workDir, gitDir := newGitDir(t)
	writeHook(t, gitDir, "post-commit", "#!/bin/sh\necho 'rejected'\nexit 1\n")
	r := hooks.NewRunner(workDir, gitDir)

	outcome, err := r.RunPostCommit(context.Background())
	require.NoError(t, err)
	require.Equal(t, hooks.Failure, outcome.Status)
	require.Contains(t, outcome.ErrorText, "rejected")
}

func TestRunCommitMsg_KeptMessageIsSuccess(t *testing.T) {
	workDir, gitDir := newGitDir(t)
	writeHook(t, gitDir, "commit-msg", "#!/bin/sh\nexit 0\n")
	r := hooks.NewRunner(workDir, gitDir)

	outcome, err := r.RunCommitMsg(context.Background(), "commit message\n")
	require.NoError(t, err)
	require.Equal(t, hooks.Success, outcome.Status)
}

func TestRunCommitMsg_RewriteIsMessage(t *testing.T) {
	workDir, gitDir := newGitDir(t)
	writeHook(t, gitDir, "commit-msg", "#!/bin/sh\necho 'rewritten message' > \"$1\"\n")
	r := hooks.NewRunner(workDir, gitDir)

	outcome, err := r.RunCommitMsg(context.Background(), "commit message\n")
	require.NoError(t, err)
	require.Equal(t, hooks.Message, outcome.Status)
	require.Equal(t, "rewritten message\n", outcome.NewMessage)
}

func TestRunCommitMsg_Failure(t *testing.T) {
	workDir, gitDir := newGitDir(t)
	writeHook(t, gitDir, "commit-msg", "#!/bin/sh\necho 'no way'\nexit 1\n")
	r := hooks.NewRunner(workDir, gitDir)

	outcome, err := r.RunCommitMsg(context.Background(), "commit message\n")
	require.NoError(t, err)
	require.Equal(t, hooks.Failure, outcome.Status)
}

func TestRunPrePush_SuppliesStdinLine(t *testing.T) {
	workDir, gitDir := newGitDir(t)
	writeHook(t, gitDir, "pre-push", "#!/bin/sh\nread line\necho \"$line\" > \"$1.out\"\n")
	r := hooks.NewRunner(workDir, gitDir)

	outcome, err := r.RunPrePush(context.Background(), "origin", "git@example.com:repo.git", "refs/heads/main", "aaa", "refs/heads/main", "bbb")
	require.NoError(t, err)
	require.Equal(t, hooks.Success, outcome.Status)

	out, err := os.ReadFile(filepath.Join(workDir, "origin.out"))
	require.NoError(t, err)
	require.Equal(t, "refs/heads/main aaa refs/heads/main bbb\n", string(out))
}

func TestRunPreCommit_RestoresIndexAfterRunning(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("hook scripts require a POSIX shell")
	}
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("requires the git binary on PATH")
	}

	repo := scenario.NewRepo(t)
	tree := repo.Tree(map[string]string{"a.txt": "a"})

	gitDir := repo.GitDir()
	indexPath := filepath.Join(gitDir, "index")
	require.NoError(t, os.WriteFile(indexPath, []byte("original-index-bytes"), 0o600))

	writeHook(t, gitDir, "pre-commit", "#!/bin/sh\nexit 0\n")
	r := hooks.NewRunner(repo.Dir, gitDir)

	outcome, err := r.RunPreCommit(context.Background(), tree)
	require.NoError(t, err)
	require.Equal(t, hooks.Success, outcome.Status)

	restored, err := os.ReadFile(indexPath)
	require.NoError(t, err)
	require.Equal(t, "original-index-bytes", string(restored))
}
