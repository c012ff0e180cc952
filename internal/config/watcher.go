package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads configuration when the config file changes on disk.
// Only safe-to-reload settings (log level) should be applied by the
// callback; server and storage settings require a restart.
type Watcher struct {
	path    string
	loader  *Loader
	logger  *slog.Logger
	onApply func(*Config)
}

// NewWatcher creates a watcher for the given config file. onApply is
// called with the freshly loaded config after every change.
func NewWatcher(path string, logger *slog.Logger, onApply func(*Config)) *Watcher {
	return &Watcher{
		path:    path,
		logger:  logger,
		onApply: onApply,
	}
}

// Run watches until the context is cancelled. A missing config file is
// not an error; the watcher simply has nothing to do then.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()

	// Watch the directory: editors replace files on save, which would
	// otherwise drop a watch on the file itself.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := NewLoader().WithConfigFile(w.path).Load()
			if err != nil {
				w.logger.Warn("config reload failed", "path", w.path, "error", err)
				continue
			}
			w.logger.Info("config reloaded", "path", w.path)
			if w.onApply != nil {
				w.onApply(cfg)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "error", err)
		}
	}
}
