package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Zuo-Peng/acta/internal/config"
	"github.com/Zuo-Peng/acta/internal/index"
)

// app bundles what most commands need: config, an open database and an
// indexer over it.
type app struct {
	cfg *config.Config
	db  *index.DB
	ix  *index.Indexer
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := index.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	ix := index.New(db,
		index.WithLogger(slog.Default()),
		index.WithProjectAliases(cfg.ProjectAliases),
	)
	return &app{cfg: cfg, db: db, ix: ix}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// refresh brings the index up to date before a read command. Failures are
// logged; stale results are better than none.
func (a *app) refresh(ctx context.Context) {
	if _, err := a.ix.IndexConfig(ctx, a.cfg, false); err != nil {
		slog.Warn("refresh index failed", "err", err)
	}
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
