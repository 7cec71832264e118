// ABOUTME: Filesystem watcher that signals when a routes directory changes
// ABOUTME: Bursts of events are debounced into a single reload callback

package routes

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a routes directory and its top-level route directories.
// fsnotify is not recursive, so deeper content changes are not seen; auth
// files and route creation are always one level down.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher starts watching root. Call Run to receive changes.
func NewWatcher(root string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{
		fsw:      fsw,
		root:     root,
		debounce: debounce,
		logger:   logger.With("component", "routes-watcher"),
	}

	if err := fsw.Add(root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", root, err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("listing %s: %w", root, err)
	}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			w.addRoute(filepath.Join(root, e.Name()))
		}
	}
	return w, nil
}

func (w *Watcher) addRoute(dir string) {
	if err := w.fsw.Add(dir); err != nil {
		w.logger.Warn("failed to watch route directory", "path", dir, "error", err)
		return
	}
	w.logger.Debug("watching route directory", "path", dir)
}

// Run calls onChange once per settled burst of filesystem events until ctx
// is canceled. It closes the watcher before returning.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	defer w.fsw.Close()

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}
			if event.Has(fsnotify.Create) && filepath.Dir(event.Name) == filepath.Clean(w.root) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.addRoute(event.Name)
				}
			}
			w.logger.Debug("routes changed", "path", event.Name, "op", event.Op.String())

			timer.Reset(w.debounce)

		case <-timer.C:
			onChange()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("routes watcher error", "error", err)
		}
	}
}
