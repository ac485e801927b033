// app.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"codeweave/internal/config"
	"codeweave/internal/database"
	"codeweave/internal/eventhub"
	"codeweave/internal/generation"
	"codeweave/internal/llm"
	"codeweave/internal/logging"
	"codeweave/internal/watcher"
)

// App holds the stores and services shared by the CLI and the server
type App struct {
	ctx      context.Context
	mu       sync.RWMutex
	config   *config.Config
	settings config.Settings
	logger   *slog.Logger

	logs            *logging.Setup
	db              *database.Database
	eventHub        *eventhub.EventHub
	registry        *prometheus.Registry
	service         *generation.Service
	settingsWatcher *watcher.Watcher
}

// NewApp creates a new App
func NewApp() *App {
	return &App{}
}

// Startup resolves paths, loads settings, sets up logging and opens the
// database. A missing model API key is not fatal: stored data stays
// readable and ai.process still works.
func (a *App) Startup(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.WriteDefaultSettings(cfg.SettingsPath); err != nil {
		return fmt.Errorf("write default settings: %w", err)
	}
	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		return err
	}

	logs, err := setupLogging(cfg.LogDir, settings.LogLevel)
	if err != nil {
		return err
	}
	a.logs = logs

	model, err := llm.NewOpenAIClient(llm.Config{
		BaseURL:     settings.Model.BaseURL,
		APIKey:      settings.Model.APIKey(),
		Model:       settings.Model.Model,
		Temperature: settings.Model.Temperature,
		MaxTokens:   settings.Model.MaxTokens,
	}, logs.Logger)
	switch {
	case errors.Is(err, llm.ErrNoAPIKey):
		logs.Logger.Warn("model disabled", "api_key_env", settings.Model.APIKeyEnv)
	case err != nil:
		return err
	}

	var client llm.ModelClient
	if model != nil {
		client = model
	}
	return a.startup(ctx, cfg, settings, logs.Logger, client)
}

// setupLogging starts logging at levelName. An unknown level falls back
// to info and is reported once the logger exists.
func setupLogging(logDir, levelName string) (*logging.Setup, error) {
	level, levelErr := config.ParseLevel(levelName)
	logs, err := logging.New(logDir, level)
	if err != nil {
		return nil, err
	}
	if levelErr != nil {
		logs.Logger.Warn("invalid log level, using fallback", "log_level", levelName, "fallback", level.String(), "error", levelErr)
	}
	return logs, nil
}

// startup opens the stores and builds the pipeline
func (a *App) startup(ctx context.Context, cfg *config.Config, settings config.Settings, logger *slog.Logger, model llm.ModelClient) error {
	a.ctx = ctx
	a.config = cfg
	a.settings = settings
	a.logger = logger

	db, err := database.Open(cfg.DatabasePath, database.WithCompressionLevel(settings.CompressionLevel))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	a.db = db

	a.eventHub = eventhub.New(ctx)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.service = generation.NewService(db, generation.Options{
		SettleDelay: settings.SettleDelay,
		Concurrency: settings.MaterializeConcurrency,
		Logger:      logger,
		Metrics:     generation.NewMetrics(a.registry),
		Hub:         a.eventHub,
		Model:       model,
	})

	logger.Info("codeweave started", "database", cfg.DatabasePath)
	return nil
}

// WatchSettings applies log_level and settle_delay changes live
func (a *App) WatchSettings() error {
	w, err := watcher.WatchSettings(a.config.SettingsPath, watcher.DefaultDebounce, a.logger, a.applySettings)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.settingsWatcher = w
	a.mu.Unlock()
	return nil
}

func (a *App) applySettings(s config.Settings) {
	a.mu.Lock()
	a.settings = s
	a.mu.Unlock()

	if a.logs != nil {
		if level, err := config.ParseLevel(s.LogLevel); err == nil {
			a.logs.SetLevel(level)
		}
	}
	a.service.SetSettleDelay(s.SettleDelay)
}

// Settings returns the settings currently in effect
func (a *App) Settings() config.Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings
}

// Shutdown closes the watcher, the database and the log file
func (a *App) Shutdown() {
	a.mu.Lock()
	w := a.settingsWatcher
	a.settingsWatcher = nil
	a.mu.Unlock()
	if w != nil {
		w.Close()
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil && a.logger != nil {
			a.logger.Warn("close database", "error", err)
		}
	}
	if a.logger != nil {
		a.logger.Info("codeweave shutdown complete")
	}
	if a.logs != nil {
		a.logs.Close()
	}
}

// AddBroadcaster forwards pipeline events to b
func (a *App) AddBroadcaster(b eventhub.Broadcaster) {
	if a.eventHub != nil {
		a.eventHub.AddBroadcaster(b)
	}
}

// Gatherer exposes the metrics registry for /metrics
func (a *App) Gatherer() prometheus.Gatherer {
	return a.registry
}
