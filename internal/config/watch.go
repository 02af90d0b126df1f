package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceInterval = 500 * time.Millisecond

// Watch reloads path whenever it changes and passes the new config to
// onChange. The directory is watched so that editors replacing the file
// are seen. A config that fails to load or validate is logged and skipped.
// Watch returns once the watcher is set up; it stops when ctx is done.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "config.watch", "path", path)

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}
	if err := fsW.Add(filepath.Dir(abs)); err != nil {
		fsW.Close()
		return fmt.Errorf("config: watch %s: %w", path, err)
	}

	reload := func() {
		cfg, err := Load(abs)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			logger.Warn("config reload skipped", "error", err)
			return
		}
		logger.Info("config reloaded")
		onChange(cfg)
	}

	go func() {
		defer fsW.Close()
		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return

			case event, ok := <-fsW.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				// Debounce: reset timer on each event.
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounceInterval, reload)

			case err, ok := <-fsW.Errors:
				if !ok {
					return
				}
				logger.Warn("watcher error", "error", err)
			}
		}
	}()
	return nil
}
