package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinoosan/bookkeeper/internal/config"
	"github.com/tinoosan/bookkeeper/internal/service/mapping"
	"github.com/tinoosan/bookkeeper/internal/service/posting"
	"github.com/tinoosan/bookkeeper/internal/service/report"
	"github.com/tinoosan/bookkeeper/internal/service/taxonomy"
	"github.com/tinoosan/bookkeeper/internal/service/trialbalance"
	"github.com/tinoosan/bookkeeper/internal/storage"
	"github.com/tinoosan/bookkeeper/internal/storage/memory"
	pgstore "github.com/tinoosan/bookkeeper/internal/storage/postgres"
	"github.com/tinoosan/bookkeeper/internal/storage/sqlite"
)

// backend is a store that can also report readiness and apply its schema.
type backend interface {
	storage.Store
	Ready(ctx context.Context) error
	Migrate(ctx context.Context) error
}

// memoryBackend gives the in-memory store a no-op schema step.
type memoryBackend struct{ *memory.Store }

func (memoryBackend) Migrate(context.Context) error { return nil }

// app holds the opened store and the services built on it.
type app struct {
	store    backend
	closeFn  func()
	balances trialbalance.Service
	posting  posting.Service
	taxonomy taxonomy.Service
	mappings mapping.Service
	reports  report.Service
}

// openApp opens the backend selected by cfg and wires the services.
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	kind, dsn, err := cfg.Backend()
	if err != nil {
		return nil, err
	}
	a := &app{closeFn: func() {}}
	switch kind {
	case config.BackendPostgres:
		pg, err := pgstore.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		a.store, a.closeFn = pg, pg.Close
	case config.BackendSQLite:
		db, err := sqlite.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		a.store, a.closeFn = db, func() { _ = db.Close() }
	default:
		slog.Warn("DATABASE_URL is not set; using an in-memory store that is lost on exit")
		a.store = memoryBackend{memory.New()}
	}
	slog.Info("storage backend", "backend", kind)

	logger := slog.Default()
	a.balances = trialbalance.New(a.store, cfg.FunctionalCurrency, logger)
	a.posting = posting.New(a.store, a.balances, cfg.FunctionalCurrency, logger)
	a.taxonomy = taxonomy.New(a.store, cfg.DefaultParentAccount, logger)
	a.mappings = mapping.New(a.store, a.posting, a.taxonomy, logger, mapping.WithPrecedence(cfg.MappingPrecedence))
	a.reports = report.New(a.store, cfg.FunctionalCurrency)
	return a, nil
}

func (a *app) Close() { a.closeFn() }

// mustOpenApp is openApp for commands that cannot continue without a store.
func mustOpenApp(ctx context.Context) *app {
	a, err := openApp(ctx, cfg)
	exitOnError(err, "failed to open storage")
	return a
}
