// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultReloadDebounce coalesces bursts of writes from editors.
const DefaultReloadDebounce = 250 * time.Millisecond

// Watch reloads a config file whenever it changes.
//
// Description:
//
//	Watches the file's directory, since editors often replace files
//	instead of writing in place. Each change is debounced, reloaded and
//	validated; valid configs are passed to onChange, invalid ones are
//	logged and ignored so the last good config stays in effect.
//
// Inputs:
//
//	ctx - Cancel to stop watching.
//	path - Config file to watch.
//	onChange - Called from the watcher goroutine with each valid reload.
//
// Outputs:
//
//	error - Non-nil if the watcher cannot be started. Returns nil when
//	        ctx is cancelled.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*ResolverConfig)) error {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("Watch: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("Watch: creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("Watch: watching %s: %w", filepath.Dir(abs), err)
	}

	reload := make(chan struct{}, 1)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(DefaultReloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			cfg, err := LoadResolverConfigFile(ctx, abs)
			if err != nil {
				logger.Warn("resolver config reload rejected",
					slog.String("path", abs),
					slog.String("error", err.Error()),
				)
				continue
			}
			logger.Info("resolver config reloaded", slog.String("path", abs))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("resolver config watcher error", slog.String("error", err.Error()))
		}
	}
}
