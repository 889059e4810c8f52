package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig watches the given files and returns a channel that emits a
// debounced reload signal whenever one of them changes. The watcher runs
// until ctx is canceled.
func WatchConfig(ctx context.Context, files ...string) <-chan struct{} {
	reloadCh := make(chan struct{}, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("failed to create fsnotify watcher", "error", err)
		return reloadCh
	}

	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			slog.Warn("could not resolve watch path", "file", file, "error", err)
			continue
		}
		if err := watcher.Add(abs); err != nil {
			slog.Warn("could not watch file", "file", file, "error", err)
		} else {
			slog.Debug("watching configuration file", "file", file)
		}
	}

	go func() {
		defer watcher.Close()
		defer close(reloadCh)

		var timer *time.Timer
		const debounce = 500 * time.Millisecond

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(debounce, func() {
						slog.Info("configuration change detected", "file", event.Name)
						select {
						case reloadCh <- struct{}{}:
						default:
						}
					})
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("watcher error", "error", err)
			}
		}
	}()

	return reloadCh
}
