package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"docforge/internal/core/entity"
	"docforge/internal/core/tx"
	"docforge/internal/domain"
	"docforge/internal/infrastructure/http/v1/handlers"
	"docforge/internal/infrastructure/storage/postgres"
	"docforge/internal/infrastructure/storage/sqlite"
	"docforge/pkg/logger"
)

const (
	backendPostgres = "postgres"
	backendSQLite   = "sqlite"
)

// backend bundles one storage implementation.
type backend struct {
	store     handlers.DoctypeStore
	repo      domain.DocumentRepository
	txManager tx.Manager
	recorder  entity.TransitionRecorder
	history   entity.TransitionHistory
	pinger    handlers.Pinger

	// Set for postgres only; the schema cache listens for doctype changes.
	notifyPool    *pgxpool.Pool
	notifyChannel string

	closers []func()
}

// Close releases the backend's resources in reverse order.
func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg config) (*backend, error) {
	switch cfg.Backend {
	case backendPostgres:
		return openPostgres(ctx, cfg)
	case backendSQLite:
		return openSQLite(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown DB_BACKEND %q (want %s or %s)", cfg.Backend, backendPostgres, backendSQLite)
}

func openPostgres(ctx context.Context, cfg config) (*backend, error) {
	poolCfg := postgres.DefaultPoolConfig(cfg.DSN)
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	b := &backend{closers: []func(){pool.Close}}

	if err := postgres.Migrate(ctx, pool); err != nil {
		b.Close()
		return nil, err
	}

	txm := postgres.NewTxManager(pool)
	audit, err := postgres.NewAuditService(txm)
	if err != nil {
		b.Close()
		return nil, err
	}

	b.store = postgres.NewDoctypeStore(txm)
	b.repo = postgres.NewDocumentRepo(txm)
	b.txManager = txm
	b.recorder = audit
	b.history = audit
	b.pinger = pool
	b.notifyPool = pool.Unwrap()
	b.notifyChannel = postgres.DoctypeChannel

	if cfg.StatsInterval > 0 {
		stop := make(chan struct{})
		go reportPoolStats(ctx, pool, cfg.StatsInterval, stop)
		b.closers = append(b.closers, func() { close(stop) })
	}
	logger.Info(ctx, "postgres backend ready")
	return b, nil
}

func reportPoolStats(ctx context.Context, pool *postgres.Pool, every time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			postgres.LogPoolStats(ctx, pool)
		}
	}
}

func openSQLite(ctx context.Context, cfg config) (*backend, error) {
	db, err := sqlite.Open(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	txm := sqlite.NewTxManager(db)
	transitions := sqlite.NewTransitionLog(txm)
	logger.Info(ctx, "sqlite backend ready", "dsn", cfg.DSN)
	return &backend{
		store:     sqlite.NewDoctypeStore(txm),
		repo:      sqlite.NewDocumentRepo(txm),
		txManager: txm,
		recorder:  transitions,
		history:   transitions,
		pinger:    handlers.PingerFunc(db.PingContext),
		closers:   []func(){func() { closeDB(ctx, db) }},
	}, nil
}

func closeDB(ctx context.Context, db *sql.DB) {
	if err := db.Close(); err != nil {
		logger.Warn(ctx, "failed to close sqlite", "error", err)
	}
}
