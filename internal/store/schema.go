package store

// schemaMigrations is applied forward-only, in order, at Open. Each
// entry is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT
// EXISTS) so re-running the full list on an already-migrated database
// is a no-op.
var schemaMigrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	initialized INTEGER NOT NULL DEFAULT 0,
	default_target_remote_name TEXT,
	default_target_branch_name TEXT,
	default_target_remote_url TEXT,
	default_target_commit_id TEXT,
	default_target_push_remote_name TEXT,
	last_pushed_base_commit_id TEXT,
	toml_mtime_ns INTEGER,
	toml_sha256 TEXT
);

CREATE TABLE IF NOT EXISTS stacks (
	id TEXT PRIMARY KEY,
	source_refname TEXT,
	upstream_remote TEXT,
	upstream_branch TEXT,
	sort_order INTEGER NOT NULL,
	in_workspace INTEGER NOT NULL DEFAULT 1,
	legacy_name TEXT,
	legacy_notes TEXT,
	legacy_order_float REAL,
	legacy_updated_at_millis INTEGER
);
CREATE INDEX IF NOT EXISTS idx_stacks_sort_order ON stacks(sort_order);
CREATE INDEX IF NOT EXISTS idx_stacks_in_workspace ON stacks(in_workspace);

CREATE TABLE IF NOT EXISTS stack_heads (
	stack_id TEXT NOT NULL REFERENCES stacks(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	name TEXT NOT NULL,
	head_commit_id TEXT NOT NULL,
	pr_number INTEGER,
	archived INTEGER NOT NULL DEFAULT 0,
	review_id TEXT,
	PRIMARY KEY (stack_id, position)
);
CREATE INDEX IF NOT EXISTS idx_stack_heads_stack_id ON stack_heads(stack_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_stack_heads_name ON stack_heads(stack_id, name);

CREATE TABLE IF NOT EXISTS branch_targets (
	stack_id TEXT PRIMARY KEY REFERENCES stacks(id) ON DELETE CASCADE,
	remote_name TEXT NOT NULL,
	branch_name TEXT NOT NULL,
	remote_url TEXT NOT NULL,
	commit_id TEXT NOT NULL,
	push_remote_name TEXT
);
`,
	},
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`); err != nil {
		return err
	}

	applied := map[int]bool{}
	rows, err := s.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	for _, m := range schemaMigrations {
		if applied[m.version] {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, m.version); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
