package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher hot-reloads configuration when source files change. Service
// credentials rotate without restarting the orchestrator.
type Watcher struct {
	parser  *CUEParser
	logger  zerolog.Logger
	sources []string
	watcher *fsnotify.Watcher
	mu      sync.Mutex
}

// NewWatcher creates a watcher over the given config sources.
func NewWatcher(parser *CUEParser, sources []string, logger zerolog.Logger) *Watcher {
	return &Watcher{
		parser:  parser,
		logger:  logger.With().Str("component", "config-watcher").Logger(),
		sources: sources,
	}
}

// Watch starts watching the sources and invokes reloadFn with each
// successfully reparsed configuration. Parse failures are logged and
// the previous configuration stays in effect.
func (w *Watcher) Watch(ctx context.Context, reloadFn func(*ParsedConfig) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	for _, source := range w.sources {
		if _, err := os.Stat(source); err != nil {
			w.logger.Warn().Err(err).Str("path", source).Msg("Failed to stat path for watching")
			continue
		}
		if err := watcher.Add(source); err != nil {
			w.logger.Warn().Err(err).Str("path", source).Msg("Failed to watch path")
		}
	}

	go w.processEvents(ctx, reloadFn)

	w.logger.Info().
		Int("sources", len(w.sources)).
		Msg("Started watching config sources")

	return nil
}

// processEvents processes file system events and triggers reloads.
func (w *Watcher) processEvents(ctx context.Context, reloadFn func(*ParsedConfig) error) {
	// Debounce reload events
	var reloadTimer *time.Timer
	reloadDelay := 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".cue") {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Config file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				if err := w.triggerReload(ctx, reloadFn); err != nil {
					w.logger.Error().Err(err).Msg("Failed to reload config")
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// triggerReload reparses the sources and hands the result to reloadFn.
func (w *Watcher) triggerReload(ctx context.Context, reloadFn func(*ParsedConfig) error) error {
	w.logger.Info().Msg("Reloading config...")

	parsedConfig, err := w.parser.Load(ctx, w.sources)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	if err := reloadFn(parsedConfig); err != nil {
		return fmt.Errorf("failed to apply reloaded config: %w", err)
	}

	w.logger.Info().
		Int("services", len(parsedConfig.Services)).
		Int("plans", len(parsedConfig.Plans)).
		Msg("Config reloaded successfully")

	return nil
}

// Stop stops watching for file changes.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		err := w.watcher.Close()
		w.watcher = nil
		return err
	}
	return nil
}
