package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/hotseat/go/internal/dbconfig"
	"github.com/mcdev12/hotseat/go/internal/session/store"
)

func setupDatabase(ctx context.Context) (*pgxpool.Pool, error) {
	cfg := dbconfig.NewConfigFromEnv()

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")
	return pool, nil
}

// setupSnapshotStore builds the session resume store the hub persists
// snapshots into.
func setupSnapshotStore(ctx context.Context, config *Config) (store.Store, error) {
	switch config.Hub.SnapshotBackend {
	case "", "redis":
		redisCfg := dbconfig.NewRedisConfigFromEnv()
		client := redis.NewClient(redisCfg.Options())
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to ping redis at %s: %w", redisCfg.Addr, err)
		}
		log.Info().Str("addr", redisCfg.Addr).Msg("connected to redis")
		return store.NewRedisStore(client, config.SnapshotTTL()), nil
	case "memory":
		log.Warn().Msg("using in-memory snapshot store, sessions will not survive a restart")
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", config.Hub.SnapshotBackend)
	}
}
