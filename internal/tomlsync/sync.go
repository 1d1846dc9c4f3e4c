package tomlsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"loomstack.dev/loom/internal/loomerr"
	"loomstack.dev/loom/internal/logging"
	"loomstack.dev/loom/internal/store"
)

// Sync reconciles a TOML mirror file with a Store using mtime+sha
// comparison to decide which side is newer.
type Sync struct {
	st         *store.Store
	mirrorPath string
	log        zerolog.Logger
}

// New constructs a Sync for the given store and mirror file path.
//
// If the mirror's containing directory does not exist, callers should
// instead construct the Store with store.OpenInMemory() before calling
// New — Sync itself does not choose the backing store, only reconciles
// against whichever one it is given.
func New(st *store.Store, mirrorPath string) *Sync {
	return &Sync{st: st, mirrorPath: mirrorPath, log: logging.WithComponent("tomlsync")}
}

// DirectoryMissing reports whether mirrorPath's parent directory does
// not exist, the trigger for the in-memory-store fallback.
func DirectoryMissing(mirrorPath string) bool {
	dir := filepath.Dir(mirrorPath)
	info, err := os.Stat(dir)
	return err != nil || !info.IsDir()
}

// SyncResult reports what Sync did. An ambiguous equal-mtime/
// differing-hash classification is flagged via AmbiguousMtime but still
// resolved as "file wins".
type SyncResult struct {
	Imported       bool
	Rewrote        bool
	AmbiguousMtime bool
}

// reconcile runs the never-initialized / missing-file / mtime-compare
// rules in order and returns the resulting snapshot plus a description
// of what happened.
func (s *Sync) reconcile(ctx context.Context) (*store.WorkspaceSnapshot, SyncResult, error) {
	snap, err := s.st.ReadSnapshot(ctx)
	if err != nil {
		return nil, SyncResult{}, err
	}

	fileData, fileErr := os.ReadFile(s.mirrorPath)
	fileParses := fileErr == nil
	var fileSnap *store.WorkspaceSnapshot
	if fileParses {
		fileSnap, fileErr = decode(fileData)
		fileParses = fileErr == nil
	}

	// Rule 1: never initialized.
	if snap == nil {
		if fileParses {
			info, err := os.Stat(s.mirrorPath)
			if err != nil {
				return nil, SyncResult{}, loomerr.IOErrorf(err, "stat mirror file")
			}
			mtimeNS := info.ModTime().UnixNano()
			sha := sha256Hex(fileData)
			fileSnap.State.Initialized = true
			fileSnap.State.TOMLMtimeNS = &mtimeNS
			fileSnap.State.TOMLSHA256 = &sha
			if err := s.st.ReplaceSnapshot(ctx, fileSnap); err != nil {
				return nil, SyncResult{}, err
			}
			return fileSnap, SyncResult{Imported: true}, nil
		}

		empty := &store.WorkspaceSnapshot{State: store.WorkspaceState{Initialized: true}}
		if err := s.writeAndRecord(ctx, empty); err != nil {
			return nil, SyncResult{}, err
		}
		return empty, SyncResult{Rewrote: true}, nil
	}

	// Rule 2: file missing or unparseable.
	if !fileParses {
		if err := s.writeAndRecord(ctx, snap); err != nil {
			return nil, SyncResult{}, err
		}
		return snap, SyncResult{Rewrote: true}, nil
	}

	// Rule 3: compare mtime/sha.
	info, err := os.Stat(s.mirrorPath)
	if err != nil {
		return nil, SyncResult{}, loomerr.IOErrorf(err, "stat mirror file")
	}
	fileMtimeNS := info.ModTime().UnixNano()
	fileSHA := sha256Hex(fileData)

	dbMtime := int64(0)
	if snap.State.TOMLMtimeNS != nil {
		dbMtime = *snap.State.TOMLMtimeNS
	}
	dbSHA := ""
	if snap.State.TOMLSHA256 != nil {
		dbSHA = *snap.State.TOMLSHA256
	}

	switch {
	case fileMtimeNS > dbMtime:
		fileSnap.State.Initialized = true
		fileSnap.State.TOMLMtimeNS = &fileMtimeNS
		fileSnap.State.TOMLSHA256 = &fileSHA
		if err := s.st.ReplaceSnapshot(ctx, fileSnap); err != nil {
			return nil, SyncResult{}, err
		}
		return fileSnap, SyncResult{Imported: true}, nil

	case fileMtimeNS == dbMtime && fileSHA != dbSHA:
		fileSnap.State.Initialized = true
		fileSnap.State.TOMLMtimeNS = &fileMtimeNS
		fileSnap.State.TOMLSHA256 = &fileSHA
		if err := s.st.ReplaceSnapshot(ctx, fileSnap); err != nil {
			return nil, SyncResult{}, err
		}
		return fileSnap, SyncResult{Imported: true, AmbiguousMtime: true}, nil

	case fileMtimeNS < dbMtime:
		if err := s.writeAndRecord(ctx, snap); err != nil {
			return nil, SyncResult{}, err
		}
		return snap, SyncResult{Rewrote: true}, nil

	default:
		return snap, SyncResult{}, nil
	}
}

// writeAndRecord writes snap to the mirror file, stats it, and updates
// the store's recorded mtime/sha to match.
func (s *Sync) writeAndRecord(ctx context.Context, snap *store.WorkspaceSnapshot) error {
	data, err := encode(snap)
	if err != nil {
		return loomerr.IOErrorf(err, "encode mirror file")
	}
	if dir := filepath.Dir(s.mirrorPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return loomerr.IOErrorf(err, "create mirror directory")
		}
	}
	if err := os.WriteFile(s.mirrorPath, data, 0o600); err != nil {
		return loomerr.IOErrorf(err, "write mirror file")
	}
	info, err := os.Stat(s.mirrorPath)
	if err != nil {
		return loomerr.IOErrorf(err, "stat mirror file after write")
	}
	mtimeNS := info.ModTime().UnixNano()
	sha := sha256Hex(data)

	out := snap.Clone()
	out.State.Initialized = true
	out.State.TOMLMtimeNS = &mtimeNS
	out.State.TOMLSHA256 = &sha
	return s.st.ReplaceSnapshot(ctx, out)
}

// ReadAndSync always first reconciles, then returns the store's view
// of WorkspaceState.
func (s *Sync) ReadAndSync(ctx context.Context) (*store.WorkspaceState, error) {
	snap, _, err := s.reconcile(ctx)
	if err != nil {
		return nil, err
	}
	return &snap.State, nil
}

// ReadAndSyncSnapshot is like ReadAndSync but returns the full
// snapshot, used by internal/workspace which needs stacks/heads/targets
// too, not just state.
func (s *Sync) ReadAndSyncSnapshot(ctx context.Context) (*store.WorkspaceSnapshot, error) {
	snap, _, err := s.reconcile(ctx)
	return snap, err
}

// WriteAndSync reconciles first, then applies the new state and
// rewrites the mirror file from it.
func (s *Sync) WriteAndSync(ctx context.Context, st *store.WorkspaceState) error {
	if _, _, err := s.reconcile(ctx); err != nil {
		return err
	}
	snap, err := s.st.ReadSnapshot(ctx)
	if err != nil {
		return err
	}
	if snap == nil {
		snap = &store.WorkspaceSnapshot{}
	}
	snap.State = *st
	return s.writeAndRecord(ctx, snap)
}

// WriteSnapshotAndSync reconciles, applies a full snapshot, and
// rewrites the mirror from it. Used by components (stack, rebase) that
// mutate stacks/heads, not just WorkspaceState.
func (s *Sync) WriteSnapshotAndSync(ctx context.Context, snap *store.WorkspaceSnapshot) error {
	if _, _, err := s.reconcile(ctx); err != nil {
		return err
	}
	return s.writeAndRecord(ctx, snap)
}

// ForceImportFromFile unconditionally overwrites the store from the
// mirror file, used by restore flows where the file has been replaced
// externally. It is an error if the file does not parse.
func (s *Sync) ForceImportFromFile(ctx context.Context) error {
	data, err := os.ReadFile(s.mirrorPath)
	if err != nil {
		return loomerr.IOErrorf(err, "read mirror file")
	}
	snap, err := decode(data)
	if err != nil {
		return loomerr.Validationf("mirror", "file does not parse: %v", err)
	}

	info, err := os.Stat(s.mirrorPath)
	if err != nil {
		return loomerr.IOErrorf(err, "stat mirror file")
	}
	mtimeNS := info.ModTime().UnixNano()
	sha := sha256Hex(data)
	snap.State.Initialized = true
	snap.State.TOMLMtimeNS = &mtimeNS
	snap.State.TOMLSHA256 = &sha

	return s.st.ReplaceSnapshot(ctx, snap)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
