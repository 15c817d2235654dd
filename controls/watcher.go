package controls

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a FileRepository when control files change on disk.
type Watcher struct {
	repo    *FileRepository
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewWatcher creates a watcher over the repository's directory.
func NewWatcher(repo *FileRepository, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := w.Add(repo.dir); err != nil {
		w.Close()
		return nil, err
	}

	return &Watcher{repo: repo, watcher: w, logger: logger}, nil
}

// Run reloads the repository on create/write/remove events until the
// context is cancelled. Reload failures are logged and the previous set
// stays in effect.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isYAML(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("Control file changed, reloading", "path", event.Name, "op", event.Op.String())
			if err := w.repo.Reload(); err != nil {
				w.logger.Warn("Control reload failed", "error", err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Control watcher error", "error", err)
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func isYAML(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}
