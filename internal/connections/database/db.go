package database

import (
	"context"
	"fmt"
	"time"

	"festival-stall/internal/common/config"
	"festival-stall/internal/common/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a bounded pool, retrying while the database comes up.
func Connect(ctx context.Context, cfg config.DB, lg *logger.Logger) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pcfg.MaxConns = cfg.MaxConns

	const (
		maxRetries = 10
		retryDelay = 2 * time.Second
		pingTTL    = 5 * time.Second
	)

	for i := 1; i <= maxRetries; i++ {
		var pool *pgxpool.Pool
		pool, err = pgxpool.NewWithConfig(ctx, pcfg)
		if err == nil {
			pctx, cancel := context.WithTimeout(ctx, pingTTL)
			err = pool.Ping(pctx)
			cancel()
			if err == nil {
				lg.Info("db_connected", map[string]any{"host": cfg.Host, "attempt": i, "max_conns": cfg.MaxConns})
				return pool, nil
			}
			pool.Close()
		}

		lg.Warn("db_connect_retry", map[string]any{"attempt": i, "error": err.Error()})
		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("db connect canceled: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("database unreachable after %d attempts: %w", maxRetries, err)
}
