package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/rendis/extbridge/internal/config"
	"github.com/rendis/extbridge/internal/dispatch"
	"github.com/rendis/extbridge/internal/expressions"
	"github.com/rendis/extbridge/internal/loader"
	"github.com/rendis/extbridge/internal/logging"
	"github.com/rendis/extbridge/internal/scanner"
	"github.com/rendis/extbridge/internal/validation"
	"github.com/rendis/extbridge/internal/watch"
)

// app is the wired process: config, scanner, orchestrator, dispatcher and
// the optional folder watcher.
type app struct {
	logger     *slog.Logger
	store      *config.Store
	loader     *loader.Orchestrator
	dispatcher *dispatch.Dispatcher
	watcher    *watch.Watcher
}

// newApp loads the configuration and wires every component. Diagnostics go to stderr.
func newApp(ctx context.Context, stderr io.Writer) (*app, error) {
	return newAppWithStore(ctx, stderr, config.DefaultPath())
}

func newAppWithStore(ctx context.Context, stderr io.Writer, configPath string) (*app, error) {
	boot := logging.New(stderr, slog.LevelInfo)
	store := config.NewStore(configPath, boot)
	cfg := store.Load()

	logger := logging.New(stderr, config.ParseLevel(cfg.LogLevel))

	var scanOpts []scanner.Option
	if cfg.ScanFilter != "" {
		engine, err := expressions.New(cfg.FilterEngine)
		if err != nil {
			logger.Warn("scan filter disabled", slog.String("error", err.Error()))
		} else {
			scanOpts = append(scanOpts, scanner.WithFilter(&scanner.Filter{Engine: engine, Expression: cfg.ScanFilter}))
		}
	}
	sc, err := scanner.New(logger, scanOpts...)
	if err != nil {
		return nil, fmt.Errorf("create scanner: %w", err)
	}

	validator, err := validation.NewRequestValidator()
	if err != nil {
		return nil, fmt.Errorf("create request validator: %w", err)
	}

	ld := loader.New(loader.Options{
		LoaderCommand: cfg.LoaderCommand,
		FirefoxPath:   cfg.FirefoxPath,
		Describe:      sc.Describe,
		Logger:        logger,
	})

	d := dispatch.New(dispatch.Deps{
		Store:     store,
		Config:    cfg,
		Scanner:   sc,
		Loader:    ld,
		Validator: validator,
		Version:   version,
		Logger:    logger,
	})

	a := &app{
		logger:     logger,
		store:      store,
		loader:     ld,
		dispatcher: d,
	}

	if cfg.WatchEnabled {
		w, err := watch.New(cfg.WatchSchedule, sc, d.Folder, logger)
		if err != nil {
			logger.Warn("folder watcher disabled", slog.String("error", err.Error()))
			return a, nil
		}
		if err := w.Start(ctx); err != nil {
			logger.Warn("folder watcher disabled", slog.String("error", err.Error()))
			return a, nil
		}
		d.SetWatcher(w)
		a.watcher = w
	}
	return a, nil
}

// Close stops background work. Spawned loader processes are left running.
func (a *app) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
}
