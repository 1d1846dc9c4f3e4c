package workspace

import (
	"context"
	"path/filepath"

	"loomstack.dev/loom/internal/config"
	"loomstack.dev/loom/internal/gitx"
	"loomstack.dev/loom/internal/hooks"
	"loomstack.dev/loom/internal/logging"
	"loomstack.dev/loom/internal/loomerr"
	"loomstack.dev/loom/internal/oplog"
	"loomstack.dev/loom/internal/stack"
	"loomstack.dev/loom/internal/store"
	"loomstack.dev/loom/internal/tomlsync"
)

// Workspace wires every workspace-engine component together for one
// project: the metadata store, its TOML mirror, the bounded oplog, the
// hook boundary, and the git repository the workspace ref lives in.
type Workspace struct {
	RepoRoot string
	Config   *config.EngineConfig
	Store    *store.Store
	Sync     *tomlsync.Sync
	Oplog    *oplog.Log
	Hooks    *hooks.Runner
	Repo     gitx.Repository
	Author   gitx.Signature

	lease       *Lease
	watchCancel context.CancelFunc
	watchStop   func() error
}

// Open wires a Workspace for the repository rooted at repoRoot,
// loading its config, opening its metadata store, and constructing the
// TOML sync, oplog, and hook runner from the resolved paths. If the
// mirror file's directory exists, Open also starts a background watch
// so an externally edited mirror is picked up without waiting for the
// next lazy ReadAndSync call; the watch is best-effort and never
// required for correctness, so a failure to start it only logs.
func Open(repoRoot string, author gitx.Signature) (*Workspace, error) {
	cfg, err := config.Load(repoRoot)
	if err != nil {
		return nil, loomerr.IOErrorf(err, "load config for %s", repoRoot)
	}

	st, err := store.Open(cfg.DatabasePathOrDefault(repoRoot))
	if err != nil {
		return nil, err
	}

	mirrorPath := cfg.MirrorPathOrDefault(repoRoot)
	sync := tomlsync.New(st, mirrorPath)

	log, err := oplog.Open(filepath.Join(repoRoot, ".git", "loom", "oplog"), cfg.MaxOplogDepthOrDefault())
	if err != nil {
		st.Close()
		return nil, err
	}

	repo, err := gitx.Open(repoRoot)
	if err != nil {
		st.Close()
		return nil, err
	}

	ws := &Workspace{
		RepoRoot: repoRoot,
		Config:   cfg,
		Store:    st,
		Sync:     sync,
		Oplog:    log,
		Hooks:    hooks.NewRunner(repoRoot, filepath.Join(repoRoot, ".git")),
		Repo:     repo,
		Author:   author,
		lease:    AcquireLease(repoRoot),
	}
	ws.startMirrorWatch(mirrorPath)
	return ws, nil
}

// startMirrorWatch starts the optional fsnotify-backed mirror watch
// described on Open. A missing mirror directory or a watcher setup
// failure is logged and otherwise ignored: ReadAndSync/WriteAndSync
// re-check the mirror's mtime/sha regardless, so the watch is purely
// an additional, earlier read path.
func (w *Workspace) startMirrorWatch(mirrorPath string) {
	if tomlsync.DirectoryMissing(mirrorPath) {
		return
	}
	log := logging.WithComponent("workspace")
	ctx, cancel := context.WithCancel(context.Background())
	stop, err := tomlsync.WatchMirror(ctx, mirrorPath, func() {
		if _, err := w.Sync.ReadAndSyncSnapshot(context.Background()); err != nil {
			log.Warn().Err(err).Msg("resync after external mirror change failed")
		}
	})
	if err != nil {
		cancel()
		log.Warn().Err(err).Msg("failed to start mirror watch")
		return
	}
	w.watchCancel = cancel
	w.watchStop = stop
}

// Close stops the mirror watch, if running, and releases the
// underlying store handle. The lease itself is not released: it is
// held for the process lifetime of this repoRoot.
func (w *Workspace) Close() error {
	if w.watchStop != nil {
		_ = w.watchStop()
	}
	if w.watchCancel != nil {
		w.watchCancel()
	}
	return w.Store.Close()
}

// Mutate runs fn under the project's write lease as a snapshot-protected
// transaction: a snapshot is captured before fn runs (happens-before the
// mutation it protects), fn computes the new snapshot value, and on
// success the store and TOML mirror are updated together and the
// workspace ref refreshed. On any failure the captured snapshot is
// restored and the error is returned; the store and references are left
// exactly as they were before Mutate was called.
func (w *Workspace) Mutate(ctx context.Context, kind string, fn func(*store.WorkspaceSnapshot) (*store.WorkspaceSnapshot, error)) (*store.WorkspaceSnapshot, error) {
	w.lease.Lock()
	defer w.lease.Unlock()
	log := logging.WithComponent("workspace")

	before, err := w.Store.ReadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if before == nil {
		before = &store.WorkspaceSnapshot{State: store.WorkspaceState{Initialized: true}}
	}

	snapshotID, err := w.Oplog.Capture(kind, before)
	if err != nil {
		return nil, err
	}

	after, mutateErr := fn(before.Clone())
	if mutateErr != nil {
		if restoreErr := w.Oplog.Restore(ctx, w.Store, snapshotID); restoreErr != nil {
			log.Error().Err(restoreErr).Str("kind", kind).Msg("failed to restore snapshot after failed mutation")
		}
		return nil, mutateErr
	}

	if err := w.Sync.WriteSnapshotAndSync(ctx, after); err != nil {
		if restoreErr := w.Oplog.Restore(ctx, w.Store, snapshotID); restoreErr != nil {
			log.Error().Err(restoreErr).Str("kind", kind).Msg("failed to restore snapshot after failed sync")
		}
		return nil, err
	}

	if _, err := RefreshWorkspaceRef(w.Repo, w.Config.WorkspaceRefOrDefault(), after, w.Author); err != nil {
		log.Error().Err(err).Str("kind", kind).Msg("failed to refresh workspace ref after mutation")
		return after, err
	}

	log.Info().Str("kind", kind).Str("snapshot", snapshotID).Msg("mutation committed")
	return after, nil
}

// Apply marks stackID as in_workspace and refreshes the workspace ref
// and TOML mirror to include it.
func (w *Workspace) Apply(ctx context.Context, stackID string) (*store.WorkspaceSnapshot, error) {
	return w.Mutate(ctx, "apply", func(snap *store.WorkspaceSnapshot) (*store.WorkspaceSnapshot, error) {
		found := false
		for i := range snap.Stacks {
			if snap.Stacks[i].ID == stackID {
				snap.Stacks[i].InWorkspace = true
				found = true
			}
		}
		if !found {
			return nil, loomerr.NotFoundf(stackID, "stack not found")
		}
		return snap, nil
	})
}

// Unapply marks stackID as not in_workspace, excluding it from the
// next workspace commit while leaving all its metadata intact.
func (w *Workspace) Unapply(ctx context.Context, stackID string) (*store.WorkspaceSnapshot, error) {
	return w.Mutate(ctx, "unapply", func(snap *store.WorkspaceSnapshot) (*store.WorkspaceSnapshot, error) {
		found := false
		for i := range snap.Stacks {
			if snap.Stacks[i].ID == stackID {
				snap.Stacks[i].InWorkspace = false
				found = true
			}
		}
		if !found {
			return nil, loomerr.NotFoundf(stackID, "stack not found")
		}
		return snap, nil
	})
}

// PushPolicy derives the force-push policy that should govern a
// stack.Squash call made against snap, from this workspace's config
// and its last-pushed-base marker.
func (w *Workspace) PushPolicy(snap *store.WorkspaceSnapshot) stack.PushPolicy {
	return stack.NewPushPolicy(w.Config, snap.State)
}
