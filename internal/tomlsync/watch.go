package tomlsync

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"loomstack.dev/loom/internal/loomerr"
)

// WatchMirror watches the mirror file's directory and calls onChange
// (typically ReadAndSyncSnapshot) whenever the file is written
// externally, so editors outside the engine are picked up promptly
// rather than waiting for the next lazy ReadAndSync call. This is an
// optional, additive read path: correctness never depends on it, since
// every ReadAndSync/WriteAndSync call re-checks mtime/sha regardless.
func WatchMirror(ctx context.Context, mirrorPath string, onChange func()) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, loomerr.IOErrorf(err, "create file watcher")
	}
	if err := watcher.Add(filepath.Dir(mirrorPath)); err != nil {
		watcher.Close()
		return nil, loomerr.IOErrorf(err, "watch mirror directory")
	}

	go func() {
		defer watcher.Close()
		base := filepath.Base(mirrorPath)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					onChange()
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher.Close, nil
}
