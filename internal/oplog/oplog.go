package oplog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"loomstack.dev/loom/internal/loomerr"
	"loomstack.dev/loom/internal/logging"
	"loomstack.dev/loom/internal/store"
)

// DefaultMaxDepth is the number of snapshots retained per project
// before the oldest are trimmed.
const DefaultMaxDepth = 10

const jsonExt = ".json"

// record is the on-disk shape of one oplog entry.
type record struct {
	Timestamp time.Time              `json:"timestamp"`
	Kind      string                 `json:"kind"`
	Snapshot  *store.WorkspaceSnapshot `json:"snapshot"`
}

// Info describes a captured snapshot without loading its full payload.
type Info struct {
	ID        string
	Kind      string
	Timestamp time.Time
}

// Log is an append-only, bounded sequence of WorkspaceSnapshot captures
// rooted at dir (conventionally "<repo>/.git/loom/oplog").
type Log struct {
	dir      string
	maxDepth int
}

// Open returns a Log rooted at dir, creating the directory if absent.
// maxDepth <= 0 falls back to DefaultMaxDepth.
func Open(dir string, maxDepth int) (*Log, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, loomerr.IOErrorf(err, "create oplog directory %s", dir)
	}
	return &Log{dir: dir, maxDepth: maxDepth}, nil
}

func filename(ts time.Time, kind string) string {
	return fmt.Sprintf("%s_%s%s", ts.UTC().Format("20060102150405.000000000"), kind, jsonExt)
}

func parseFilename(name string) (time.Time, string, error) {
	if filepath.Ext(name) != jsonExt {
		return time.Time{}, "", fmt.Errorf("not a snapshot file: %s", name)
	}
	base := name[:len(name)-len(jsonExt)]
	idx := -1
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '_' {
			idx = i
			break
		}
	}
	if idx == -1 {
		return time.Time{}, "", fmt.Errorf("malformed snapshot filename: %s", name)
	}
	ts, err := time.Parse("20060102150405.000000000", base[:idx])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("malformed snapshot timestamp in %s: %w", name, err)
	}
	return ts, base[idx+1:], nil
}

// Capture writes snapshot to a new oplog entry tagged with kind,
// happening-before the mutation it protects, then trims the log down
// to maxDepth entries. Returns the new entry's id (its filename minus
// the extension).
func (l *Log) Capture(kind string, snapshot *store.WorkspaceSnapshot) (string, error) {
	log := logging.WithComponent("oplog")
	ts := time.Now()
	name := filename(ts, kind)

	data, err := json.MarshalIndent(record{Timestamp: ts, Kind: kind, Snapshot: snapshot.Clone()}, "", "  ")
	if err != nil {
		return "", loomerr.IOErrorf(err, "marshal oplog entry")
	}
	path := filepath.Join(l.dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", loomerr.IOErrorf(err, "write oplog entry %s", path)
	}
	log.Debug().Str("kind", kind).Str("id", name).Msg("captured snapshot")

	if err := l.trim(); err != nil {
		log.Warn().Err(err).Msg("failed to trim oplog, entry count may exceed max depth")
	}
	return name[:len(name)-len(jsonExt)], nil
}

// trim deletes the oldest entries once the log exceeds maxDepth,
// mirroring enforceMaxStackDepth's filename-sort approach: the
// timestamp prefix makes lexicographic and chronological order agree.
func (l *Log) trim() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return loomerr.IOErrorf(err, "read oplog directory %s", l.dir)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == jsonExt {
			names = append(names, e.Name())
		}
	}
	if len(names) <= l.maxDepth {
		return nil
	}
	sort.Strings(names)
	toDelete := len(names) - l.maxDepth
	for _, name := range names[:toDelete] {
		if err := os.Remove(filepath.Join(l.dir, name)); err != nil {
			return loomerr.IOErrorf(err, "remove stale oplog entry %s", name)
		}
	}
	return nil
}

// List returns every retained entry, newest first.
func (l *Log) List() ([]Info, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, loomerr.IOErrorf(err, "read oplog directory %s", l.dir)
	}

	var infos []Info
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ts, kind, err := parseFilename(e.Name())
		if err != nil {
			continue
		}
		infos = append(infos, Info{ID: e.Name()[:len(e.Name())-len(jsonExt)], Kind: kind, Timestamp: ts})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID > infos[j].ID })
	return infos, nil
}

// Load reads and decodes entry id's full snapshot.
func (l *Log) Load(id string) (*store.WorkspaceSnapshot, error) {
	path := filepath.Join(l.dir, id+jsonExt)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, loomerr.NotFoundf(id, "oplog entry not found")
		}
		return nil, loomerr.IOErrorf(err, "read oplog entry %s", path)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, loomerr.IOErrorf(err, "parse oplog entry %s", path)
	}
	return rec.Snapshot, nil
}

// Restore replaces st's current snapshot with entry id's, via the same
// ReplaceSnapshot path any other write uses. Restoring twice is
// idempotent: the second restore writes the identical snapshot the
// first one already installed, a no-op at the row level.
func (l *Log) Restore(ctx context.Context, st *store.Store, id string) error {
	snapshot, err := l.Load(id)
	if err != nil {
		return err
	}
	return st.ReplaceSnapshot(ctx, snapshot)
}
