package agent

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watchExternalEdits starts an optional fsnotify watcher on the workspace
// root (spec.md §5 "Background workers" addition). It degrades gracefully:
// if the watcher can't be created (e.g. inotify limits exhausted in a
// container) the agent continues without external-edit detection — it
// never blocks startup or Run. The failure is logged only when a logger is
// passed; StartWatching passes none.
func (a *Agent) watchExternalEdits(logger *zap.Logger) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		if logger != nil {
			logger.Warn("external-edit watcher unavailable, continuing without it", zap.Error(err))
		}
		return
	}
	if err := watcher.Add(a.workDir); err != nil {
		if logger != nil {
			logger.Warn("failed to watch workspace root", zap.Error(err))
		}
		watcher.Close()
		return
	}

	a.watcher = watcher
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				rel, err := filepath.Rel(a.workDir, ev.Name)
				if err != nil {
					rel = ev.Name
				}
				a.tools.InvalidateCache(rel)
				a.emit(EventDisplay, map[string]any{
					"source": "external_edit",
					"path":   rel,
					"op":     ev.Op.String(),
				})
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if logger != nil {
					logger.Warn("watcher error", zap.Error(werr))
				}
			}
		}
	}()
}

// StopWatching closes the external-edit watcher, if one is running.
func (a *Agent) StopWatching() {
	if a.watcher != nil {
		a.watcher.Close()
		a.watcher = nil
	}
}
