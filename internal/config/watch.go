package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch monitors path for changes and calls onChange with the newly loaded
// Configuration each time the file is written or replaced. It runs until ctx
// is cancelled.
//
// The parent directory is watched rather than the file itself, so saves that
// write a temporary file and rename it over path keep being seen.
//
// A reload that fails to parse or validate is logged and onChange is not
// called, so the previous configuration stays active.
func Watch(ctx context.Context, logger *zap.Logger, path string, onChange func(*Configuration)) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	logger.Info("watching configuration for changes",
		zap.String("op", "config.Watch"),
		zap.String("path", path),
	)

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
			// A rename over path shows up as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			conf, err := LoadConfiguration(path)
			if err == nil {
				err = conf.Validate()
			}
			if err != nil {
				logger.Error("configuration reload failed, keeping previous configuration",
					zap.String("op", "config.Watch"),
					zap.String("path", path),
					zap.Error(err),
				)
				continue
			}

			logger.Info("configuration reloaded",
				zap.String("op", "config.Watch"),
				zap.String("path", path),
			)
			onChange(conf)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("configuration watcher error",
				zap.String("op", "config.Watch"),
				zap.Error(err),
			)
		}
	}
}
