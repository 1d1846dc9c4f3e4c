package hooks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"loomstack.dev/loom/internal/gitx"
	"loomstack.dev/loom/internal/loomerr"
	"loomstack.dev/loom/internal/logging"
)

// Status tags the shape of a hook's outcome.
type Status int

const (
	// NotConfigured means the hook script does not exist; callers treat
	// this as an implicit pass.
	NotConfigured Status = iota
	// Success means the hook exited zero.
	Success
	// Failure means the hook exited non-zero; ErrorText carries its
	// combined output.
	Failure
	// Message means a commit-msg hook rewrote the message; NewMessage
	// carries the rewritten text. Never produced by any other hook.
	Message
)

func (s Status) String() string {
	switch s {
	case NotConfigured:
		return "not_configured"
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Message:
		return "message"
	default:
		return "unknown"
	}
}

// Outcome is the single result type every hook in this package returns.
type Outcome struct {
	Status     Status
	ErrorText  string
	NewMessage string
}

// DefaultTimeout bounds how long a single hook invocation may run.
const DefaultTimeout = 60 * time.Second

// Runner executes hook scripts under one project's .git/hooks
// directory, hiding process-execution and index manipulation behind
// the Outcome contract so callers never branch on OS specifics.
type Runner struct {
	workDir string
	gitDir  string
	timeout time.Duration
}

// NewRunner returns a Runner for the repository whose working tree is
// workDir and whose git directory is gitDir.
func NewRunner(workDir, gitDir string) *Runner {
	return &Runner{workDir: workDir, gitDir: gitDir, timeout: DefaultTimeout}
}

func (r *Runner) hookPath(name string) (string, bool) {
	path := filepath.Join(r.gitDir, "hooks", name)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	return path, true
}

// run shells out to path with args and, if stdin is non-nil, feeds it
// on the child's standard input, combining stdout/stderr into a single
// error text on non-zero exit.
func (r *Runner) run(ctx context.Context, path string, args []string, stdin []byte) (Outcome, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = r.workDir
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		return Outcome{Status: Failure, ErrorText: joinOutput(stdout.String(), stderr.String(), cmd.ProcessState)}, nil
	}
	return Outcome{Status: Success}, nil
}

func joinOutput(stdout, stderr string, state *os.ProcessState) string {
	code := ""
	if state != nil {
		code = fmt.Sprintf(" (exit code %d)", state.ExitCode())
	}
	switch {
	case stdout == "" && stderr == "":
		return "hook produced no output" + code
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	default:
		return fmt.Sprintf("stdout:\n%s\n\nstderr:\n%s%s", stdout, stderr, code)
	}
}

// RunPostCommit runs the post-commit hook with no arguments.
func (r *Runner) RunPostCommit(ctx context.Context) (Outcome, error) {
	path, ok := r.hookPath("post-commit")
	if !ok {
		return Outcome{Status: NotConfigured}, nil
	}
	return r.run(ctx, path, nil, nil)
}

// RunCommitMsg runs the commit-msg hook over message, which the hook
// receives as a file path and may rewrite in place per githooks(5).
func (r *Runner) RunCommitMsg(ctx context.Context, message string) (Outcome, error) {
	path, ok := r.hookPath("commit-msg")
	if !ok {
		return Outcome{Status: NotConfigured}, nil
	}

	msgFile := filepath.Join(r.gitDir, "LOOM_COMMIT_EDITMSG")
	if err := os.WriteFile(msgFile, []byte(message), 0o600); err != nil {
		return Outcome{}, loomerr.IOErrorf(err, "write commit message scratch file")
	}
	defer os.Remove(msgFile) //nolint:errcheck

	outcome, err := r.run(ctx, path, []string{msgFile}, nil)
	if err != nil || outcome.Status == Failure {
		return outcome, err
	}

	rewritten, err := os.ReadFile(msgFile)
	if err != nil {
		return Outcome{}, loomerr.IOErrorf(err, "read back commit message scratch file")
	}
	if string(rewritten) != message {
		return Outcome{Status: Message, NewMessage: string(rewritten)}, nil
	}
	return Outcome{Status: Success}, nil
}

// RunPreCommit runs the pre-commit hook against proposedTree: the
// current index is backed up, proposedTree is installed in its place
// via `git read-tree`, the hook runs against that staged state, and
// the original index is restored on every exit path including a panic
// unwind, regardless of whether the hook passed, failed, or errored.
func (r *Runner) RunPreCommit(ctx context.Context, proposedTree gitx.OID) (Outcome, error) {
	path, ok := r.hookPath("pre-commit")
	if !ok {
		return Outcome{Status: NotConfigured}, nil
	}

	guard, err := newIndexGuard(r.gitDir)
	if err != nil {
		return Outcome{}, err
	}
	defer func() {
		if restoreErr := guard.restore(); restoreErr != nil {
			logging.WithComponent("hooks").Error().Err(restoreErr).Msg("failed to restore index after pre-commit hook")
		}
	}()

	if err := r.installTree(ctx, proposedTree); err != nil {
		return Outcome{}, err
	}
	return r.run(ctx, path, nil, nil)
}

func (r *Runner) installTree(ctx context.Context, tree gitx.OID) error {
	cmd := exec.CommandContext(ctx, "git", "--git-dir="+r.gitDir, "--work-tree="+r.workDir, "read-tree", string(tree))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return loomerr.IOErrorf(err, "install proposed tree into index: %s", strings.TrimSpace(stderr.String()))
	}
	return nil
}

// RunPrePush runs the pre-push hook with remoteName and remoteURL as
// arguments and the "<local ref> <local sha1> <remote ref> <remote
// sha1>" line on stdin, per githooks(5).
func (r *Runner) RunPrePush(ctx context.Context, remoteName, remoteURL, localRef, localSHA, remoteRef, remoteSHA string) (Outcome, error) {
	path, ok := r.hookPath("pre-push")
	if !ok {
		return Outcome{Status: NotConfigured}, nil
	}
	stdin := fmt.Sprintf("%s %s %s %s\n", localRef, localSHA, remoteRef, remoteSHA)
	return r.run(ctx, path, []string{remoteName, remoteURL}, []byte(stdin))
}

// indexGuard backs up the raw .git/index file and restores it exactly,
// including the absent-file case, on restore.
type indexGuard struct {
	path    string
	data    []byte
	existed bool
}

func newIndexGuard(gitDir string) (*indexGuard, error) {
	path := filepath.Join(gitDir, "index")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &indexGuard{path: path, existed: false}, nil
		}
		return nil, loomerr.IOErrorf(err, "read index %s", path)
	}
	return &indexGuard{path: path, data: data, existed: true}, nil
}

func (g *indexGuard) restore() error {
	if !g.existed {
		if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
			return loomerr.IOErrorf(err, "remove index %s", g.path)
		}
		return nil
	}
	if err := os.WriteFile(g.path, g.data, 0o600); err != nil {
		return loomerr.IOErrorf(err, "restore index %s", g.path)
	}
	return nil
}
