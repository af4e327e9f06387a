// Package app wires a workspace into a ready engine: database, migrations,
// config, logging and metrics.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"reviewline/internal/config"
	"reviewline/internal/db"
	"reviewline/internal/engine"
	"reviewline/internal/logger"
	"reviewline/internal/metrics"
	"reviewline/internal/migrate"
)

type Options struct {
	Workspace string
	// LogLevel overrides log.level from reviewline.yml when set.
	LogLevel  string
	LogOutput io.Writer
}

type App struct {
	DB      *sql.DB
	Config  *config.Config
	Engine  engine.Engine
	Log     zerolog.Logger
	Metrics *metrics.Metrics
}

// Open loads reviewline.yml (defaults when absent), opens and migrates the
// workspace database and builds the engine.
func Open(ctx context.Context, opts Options) (*App, error) {
	if _, err := db.EnsureWorkspace(opts.Workspace); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.Log.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	log := logger.New(logger.Config{Level: level, Pretty: cfg.Log.Pretty, Output: opts.LogOutput})

	conn, err := db.Open(db.Config{Workspace: opts.Workspace, BusyTimeoutMS: cfg.Store.BusyTimeoutMS})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	m := metrics.New()
	log.Debug().Str("db", db.Path(opts.Workspace)).Msg("workspace opened")
	return &App{
		DB:      conn,
		Config:  cfg,
		Engine:  engine.New(conn, cfg, log, m),
		Log:     log,
		Metrics: m,
	}, nil
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
