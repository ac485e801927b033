package watcher

import (
	"log/slog"
	"time"

	"codeweave/internal/config"
)

// DefaultDebounce is how long a burst of writes must be quiet before reload
const DefaultDebounce = 200 * time.Millisecond

// WatchSettings reloads the settings file whenever it changes and hands
// the result to apply. A file that fails to parse or validate is logged
// and the previous settings stay in effect.
func WatchSettings(path string, debounce time.Duration, logger *slog.Logger, apply func(config.Settings)) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	w, err := New(path, debounce, logger, func(e Event) {
		if e.Type == EventDelete || e.Type == EventRename {
			return
		}
		settings, err := config.LoadSettings(path)
		if err != nil {
			logger.Warn("settings reload rejected", "path", path, "error", err)
			return
		}
		logger.Info("settings reloaded", "path", path, "log_level", settings.LogLevel, "settle_delay", settings.SettleDelay)
		apply(settings)
	})
	if err != nil {
		return nil, err
	}

	if err := w.Start(); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}
