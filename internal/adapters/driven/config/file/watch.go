package file

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/tablesync/internal/core/domain"
)

// DefaultWatchDebounce coalesces the burst of events an editor save produces.
const DefaultWatchDebounce = 200 * time.Millisecond

// SourcesChanged receives the result of re-reading the sources file.
type SourcesChanged func(set *domain.SourceSet, err error)

// WatchSources re-reads the sources file whenever it changes and reports
// the result to fn, until ctx is done. Runs always load the file themselves;
// this only surfaces mistakes before the next trigger.
//
// The parent directory is watched so that editors that save by renaming a
// temp file over the original are seen.
func WatchSources(ctx context.Context, loader *SourceLoader, debounce time.Duration, fn SourcesChanged) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	path, err := filepath.Abs(loader.Path())
	if err != nil {
		return fmt.Errorf("resolving sources path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}

			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if ctx.Err() != nil {
					return
				}
				fn(loader.Load(ctx))
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fn(nil, fmt.Errorf("watching sources file: %w", err))
		}
	}
}
