// Package persist stores tick telemetry in PostgreSQL.
package persist

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cacaoengine/cacao/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// DB is the telemetry connection pool. A run writes through at most a
// couple of connections, so the pool stays small.
type DB struct {
	Pool *pgxpool.Pool
	log  *zap.Logger
}

func NewDB(ctx context.Context, cfg config.TelemetryConfig, log *zap.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse telemetry dsn: %w", err)
	}
	poolCfg.MaxConns = int32(max(cfg.MaxConns, 1))
	poolCfg.MinConns = 0
	poolCfg.MaxConnIdleTime = time.Minute
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "cacao"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open telemetry pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping telemetry db: %w", err)
	}

	log.Info("telemetry database connected",
		zap.String("host", poolCfg.ConnConfig.Host),
		zap.String("database", poolCfg.ConnConfig.Database),
		zap.Int32("max_conns", poolCfg.MaxConns),
	)
	return &DB{Pool: pool, log: log}, nil
}

// SQL returns a database/sql view of the pool for tools that need one.
// Closing it does not close the pool.
func (db *DB) SQL() *sql.DB {
	return stdlib.OpenDBFromPool(db.Pool)
}

func (db *DB) Close() {
	db.Pool.Close()
	db.log.Debug("telemetry database closed")
}
