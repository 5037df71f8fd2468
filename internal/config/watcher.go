package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"datasync/internal/common"
	"datasync/pkg/models"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a Store when its file changes on disk.
type Watcher struct {
	store    *Store
	onChange func(cfg *models.Config)
	debounce time.Duration
}

// NewWatcher calls onChange with the reloaded record after every external
// edit that changes it. Writes made through the store do not fire.
func NewWatcher(store *Store, onChange func(cfg *models.Config)) *Watcher {
	return &Watcher{store: store, onChange: onChange, debounce: DefaultDebounce}
}

// Run watches the config directory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	// The directory is watched, not the file: an atomic save replaces the inode.
	dir := filepath.Dir(w.store.Path())
	if err := common.EnsureDir(dir, common.DirPermissionSecure); err != nil {
		return err
	}
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", dir, err)
	}

	target := filepath.Clean(w.store.Path())
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.reload()

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.store.logger.WarnWithFields("Config watcher error", map[string]interface{}{"error": err})
		}
	}
}

func (w *Watcher) reload() {
	changed, err := w.store.Reload()
	if err != nil {
		w.store.logger.WarnWithFields("Config reload failed, keeping previous record", map[string]interface{}{
			"error": err,
		})
		return
	}
	if !changed {
		return
	}
	w.store.logger.Info("Config file changed on disk, reloaded")
	if w.onChange != nil {
		w.onChange(w.store.Get())
	}
}
