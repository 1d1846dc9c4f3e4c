package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rs/zerolog"

	"loomstack.dev/loom/internal/loomerr"
	"loomstack.dev/loom/internal/logging"
)

// Store is a typed, transactional persistence layer over a single
// WorkspaceSnapshot. One Store corresponds to one project's database
// file; callers must Close it when done.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if necessary) the SQLite database at path and
// applies any pending schema migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, loomerr.IOErrorf(err, "create database directory %s", dir)
		}
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, loomerr.IOErrorf(err, "open database %s", path)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, loomerr.IOErrorf(err, "ping database %s", path)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, loomerr.IOErrorf(err, "set %s", pragma)
		}
	}

	s := &Store{db: db, log: logging.WithComponent("store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, loomerr.IOErrorf(err, "apply migrations")
	}
	return s, nil
}

// OpenInMemory opens a private, non-persisted database. Used by tests
// and testhelpers/scenario; no engine code path opens one.
func OpenInMemory() (*Store, error) {
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		return nil, loomerr.IOErrorf(err, "open in-memory database")
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, loomerr.IOErrorf(err, "set pragma")
	}
	s := &Store{db: db, log: logging.WithComponent("store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, loomerr.IOErrorf(err, "apply migrations")
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx, letting read
// helpers run either standalone or nested inside a caller's transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ReadSnapshot returns the current WorkspaceSnapshot, or (nil, nil) if
// the state row has never been written (spec's Option semantics).
//
// Reads run inside a deferred read transaction so all four SELECTs
// observe one consistent view.
func (s *Store) ReadSnapshot(ctx context.Context) (*WorkspaceSnapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, loomerr.IOErrorf(err, "begin read transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	snap, err := s.readSnapshotTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, loomerr.IOErrorf(err, "commit read transaction")
	}
	return snap, nil
}

func (s *Store) readSnapshotTx(ctx context.Context, q querier) (*WorkspaceSnapshot, error) {
	state, found, err := s.readState(ctx, q)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	stacks, err := s.readStacks(ctx, q)
	if err != nil {
		return nil, err
	}
	heads, err := s.readHeads(ctx, q)
	if err != nil {
		return nil, err
	}
	targets, err := s.readBranchTargets(ctx, q)
	if err != nil {
		return nil, err
	}

	if err := validateHeads(stacks, heads); err != nil {
		return nil, err
	}

	return &WorkspaceSnapshot{State: *state, Stacks: stacks, Heads: heads, BranchTargets: targets}, nil
}

func (s *Store) readState(ctx context.Context, q querier) (*WorkspaceState, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT initialized, default_target_remote_name, default_target_branch_name,
		       default_target_remote_url, default_target_commit_id, default_target_push_remote_name,
		       last_pushed_base_commit_id, toml_mtime_ns, toml_sha256
		FROM state WHERE id = 1`)

	var st WorkspaceState
	var initialized int
	err := row.Scan(&initialized, &st.DefaultTargetRemoteName, &st.DefaultTargetBranchName,
		&st.DefaultTargetRemoteURL, &st.DefaultTargetCommitID, &st.DefaultTargetPushRemoteName,
		&st.LastPushedBaseCommitID, &st.TOMLMtimeNS, &st.TOMLSHA256)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, loomerr.IOErrorf(err, "read state row")
	}
	st.Initialized = initialized != 0

	if st.DefaultTargetRemoteName != nil {
		missing := st.DefaultTargetBranchName == nil || st.DefaultTargetRemoteURL == nil || st.DefaultTargetCommitID == nil
		if missing {
			return nil, false, loomerr.CorruptStatef("state", "default target fields are partially set")
		}
	}

	return &st, true, nil
}

func (s *Store) readStacks(ctx context.Context, q querier) ([]Stack, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, source_refname, upstream_remote, upstream_branch, sort_order, in_workspace,
		       legacy_name, legacy_notes, legacy_order_float, legacy_updated_at_millis
		FROM stacks ORDER BY sort_order ASC, id ASC`)
	if err != nil {
		return nil, loomerr.IOErrorf(err, "query stacks")
	}
	defer rows.Close()

	var out []Stack
	for rows.Next() {
		var st Stack
		var inWorkspace int
		if err := rows.Scan(&st.ID, &st.SourceRefname, &st.UpstreamRemote, &st.UpstreamBranch,
			&st.SortOrder, &inWorkspace, &st.LegacyName, &st.LegacyNotes,
			&st.LegacyOrderFloat, &st.LegacyUpdatedAtMillis); err != nil {
			return nil, loomerr.IOErrorf(err, "scan stack row")
		}
		st.InWorkspace = inWorkspace != 0
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) readHeads(ctx context.Context, q querier) ([]StackHead, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT stack_id, position, name, head_commit_id, pr_number, archived, review_id
		FROM stack_heads ORDER BY stack_id ASC, position ASC`)
	if err != nil {
		return nil, loomerr.IOErrorf(err, "query stack_heads")
	}
	defer rows.Close()

	var out []StackHead
	for rows.Next() {
		var h StackHead
		var archived int
		if err := rows.Scan(&h.StackID, &h.Position, &h.Name, &h.HeadCommitID, &h.PRNumber, &archived, &h.ReviewID); err != nil {
			return nil, loomerr.IOErrorf(err, "scan stack_head row")
		}
		h.Archived = archived != 0
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) readBranchTargets(ctx context.Context, q querier) ([]BranchTarget, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT stack_id, remote_name, branch_name, remote_url, commit_id, push_remote_name
		FROM branch_targets ORDER BY stack_id ASC`)
	if err != nil {
		return nil, loomerr.IOErrorf(err, "query branch_targets")
	}
	defer rows.Close()

	var out []BranchTarget
	for rows.Next() {
		var bt BranchTarget
		if err := rows.Scan(&bt.StackID, &bt.RemoteName, &bt.BranchName, &bt.RemoteURL, &bt.CommitID, &bt.PushRemoteName); err != nil {
			return nil, loomerr.IOErrorf(err, "scan branch_target row")
		}
		out = append(out, bt)
	}
	return out, rows.Err()
}

// renumberHeads returns a copy of heads with each stack's positions
// renumbered contiguously from zero, relative order preserved (stable
// sort by each head's existing Position within its stack). A caller
// that removed an interior head leaves a gap in Position; this closes
// it instead of requiring the caller to renumber by hand.
func renumberHeads(heads []StackHead) []StackHead {
	byStack := map[string][]int{}
	for i, h := range heads {
		byStack[h.StackID] = append(byStack[h.StackID], i)
	}
	out := append([]StackHead(nil), heads...)
	for _, idxs := range byStack {
		sort.SliceStable(idxs, func(a, b int) bool {
			return out[idxs[a]].Position < out[idxs[b]].Position
		})
		for newPos, idx := range idxs {
			out[idx].Position = newPos
		}
	}
	return out
}

// validateHeads enforces per-stack position-contiguity and
// name-uniqueness invariants, surfacing a CorruptState error naming the
// first offending stack.
func validateHeads(stacks []Stack, heads []StackHead) error {
	byStack := map[string][]StackHead{}
	for _, h := range heads {
		byStack[h.StackID] = append(byStack[h.StackID], h)
	}
	for _, st := range stacks {
		hs := byStack[st.ID]
		seenPos := map[int]bool{}
		seenName := map[string]bool{}
		for _, h := range hs {
			if seenPos[h.Position] {
				return loomerr.CorruptStatef(st.ID, "duplicate head position %d", h.Position)
			}
			seenPos[h.Position] = true
			if seenName[h.Name] {
				return loomerr.CorruptStatef(st.ID, "duplicate head name %q", h.Name)
			}
			seenName[h.Name] = true
		}
		for i := 0; i < len(hs); i++ {
			if !seenPos[i] {
				return loomerr.CorruptStatef(st.ID, "head positions are not contiguous from zero")
			}
		}
	}
	return nil
}

// WriteState upserts the singleton state row.
func (s *Store) WriteState(ctx context.Context, st *WorkspaceState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return loomerr.IOErrorf(err, "begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := writeStateTx(ctx, tx, st); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return loomerr.IOErrorf(err, "commit state write")
	}
	return nil
}

func writeStateTx(ctx context.Context, tx *sql.Tx, st *WorkspaceState) error {
	initialized := 0
	if st.Initialized {
		initialized = 1
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO state (id, initialized, default_target_remote_name, default_target_branch_name,
			default_target_remote_url, default_target_commit_id, default_target_push_remote_name,
			last_pushed_base_commit_id, toml_mtime_ns, toml_sha256)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			initialized = excluded.initialized,
			default_target_remote_name = excluded.default_target_remote_name,
			default_target_branch_name = excluded.default_target_branch_name,
			default_target_remote_url = excluded.default_target_remote_url,
			default_target_commit_id = excluded.default_target_commit_id,
			default_target_push_remote_name = excluded.default_target_push_remote_name,
			last_pushed_base_commit_id = excluded.last_pushed_base_commit_id,
			toml_mtime_ns = excluded.toml_mtime_ns,
			toml_sha256 = excluded.toml_sha256`,
		initialized, st.DefaultTargetRemoteName, st.DefaultTargetBranchName,
		st.DefaultTargetRemoteURL, st.DefaultTargetCommitID, st.DefaultTargetPushRemoteName,
		st.LastPushedBaseCommitID, st.TOMLMtimeNS, st.TOMLSHA256)
	if err != nil {
		return loomerr.IOErrorf(err, "upsert state")
	}
	return nil
}

// ReplaceSnapshot atomically replaces all stack rows, their heads, and
// their targets, then writes state, all inside one transaction of its
// own, so the write is all-or-nothing and a concurrent reader never
// observes a partially-written snapshot. Duplicate head positions
// within a stack are rejected as CorruptState; otherwise head
// positions are renumbered contiguously from zero per stack as they
// are written. Stacks are written in the order given; ReadSnapshot
// returns them ordered by (SortOrder, ID). To run inside a caller's
// open transaction, use ReplaceSnapshotTx.
func (s *Store) ReplaceSnapshot(ctx context.Context, snap *WorkspaceSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return loomerr.IOErrorf(err, "begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := s.replaceSnapshotTx(ctx, tx, snap); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return loomerr.IOErrorf(err, "commit snapshot replace")
	}
	return nil
}

// ReplaceSnapshotTx is the savepoint-scoped variant for callers that
// already hold an open transaction (for example one opened by WithTx);
// on failure only this unit is rolled back to the savepoint.
func (s *Store) ReplaceSnapshotTx(ctx context.Context, tx *sql.Tx, snap *WorkspaceSnapshot) error {
	const savepoint = "replace_snapshot"
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
		return loomerr.IOErrorf(err, "create savepoint")
	}
	if err := s.replaceSnapshotTx(ctx, tx, snap); err != nil {
		_, _ = tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint)
		return err
	}
	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+savepoint); err != nil {
		return loomerr.IOErrorf(err, "release savepoint")
	}
	return nil
}

func (s *Store) replaceSnapshotTx(ctx context.Context, tx *sql.Tx, snap *WorkspaceSnapshot) error {
	seenPos := map[string]map[int]bool{}
	for _, h := range snap.Heads {
		if seenPos[h.StackID] == nil {
			seenPos[h.StackID] = map[int]bool{}
		}
		if seenPos[h.StackID][h.Position] {
			return loomerr.CorruptStatef(h.StackID, "duplicate head position %d", h.Position)
		}
		seenPos[h.StackID][h.Position] = true
	}
	heads := renumberHeads(snap.Heads)
	if err := validateHeads(snap.Stacks, heads); err != nil {
		return err
	}

	for _, table := range []string{"branch_targets", "stack_heads", "stacks"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return loomerr.IOErrorf(err, "clear %s", table)
		}
	}

	for _, st := range snap.Stacks {
		inWorkspace := 0
		if st.InWorkspace {
			inWorkspace = 1
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stacks (id, source_refname, upstream_remote, upstream_branch, sort_order,
				in_workspace, legacy_name, legacy_notes, legacy_order_float, legacy_updated_at_millis)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			st.ID, st.SourceRefname, st.UpstreamRemote, st.UpstreamBranch, st.SortOrder,
			inWorkspace, st.LegacyName, st.LegacyNotes, st.LegacyOrderFloat, st.LegacyUpdatedAtMillis); err != nil {
			return loomerr.IOErrorf(err, "insert stack %s", st.ID)
		}
	}

	for _, h := range heads {
		archived := 0
		if h.Archived {
			archived = 1
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stack_heads (stack_id, position, name, head_commit_id, pr_number, archived, review_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			h.StackID, h.Position, h.Name, h.HeadCommitID, h.PRNumber, archived, h.ReviewID); err != nil {
			return loomerr.IOErrorf(err, "insert stack_head %s/%d", h.StackID, h.Position)
		}
	}

	for _, bt := range snap.BranchTargets {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO branch_targets (stack_id, remote_name, branch_name, remote_url, commit_id, push_remote_name)
			VALUES (?, ?, ?, ?, ?, ?)`,
			bt.StackID, bt.RemoteName, bt.BranchName, bt.RemoteURL, bt.CommitID, bt.PushRemoteName); err != nil {
			return loomerr.IOErrorf(err, "insert branch_target %s", bt.StackID)
		}
	}

	return writeStateTx(ctx, tx, &snap.State)
}

// WithTx runs fn inside a single transaction, letting a caller compose
// a ReplaceSnapshotTx call with other statements so they all commit or
// roll back together.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return loomerr.IOErrorf(err, "begin transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return loomerr.IOErrorf(err, "commit transaction")
	}
	return nil
}

// ReadSnapshotTx reads a snapshot using an existing transaction, for
// callers composing multiple reads/writes into one unit of work.
func (s *Store) ReadSnapshotTx(ctx context.Context, tx *sql.Tx) (*WorkspaceSnapshot, error) {
	return s.readSnapshotTx(ctx, tx)
}
