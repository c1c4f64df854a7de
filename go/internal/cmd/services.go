package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/hotseat/go/internal/session/gateway"
	"github.com/mcdev12/hotseat/go/internal/session/hub"
	"github.com/mcdev12/hotseat/go/internal/session/outbox"
)

type Services struct {
	Hub     *hub.Hub
	Gateway *gateway.Service

	pool *pgxpool.Pool
}

// setupServices wires the snapshot store, the optional outbox, and the
// gateway around one hub.
// The gateway installs itself as the hub's sender, so it is created here
// rather than lazily.
func setupServices(ctx context.Context, config *Config) (*Services, error) {
	snapshots, err := setupSnapshotStore(ctx, config)
	if err != nil {
		return nil, err
	}

	var appender hub.OutboxAppender
	var pool *pgxpool.Pool
	if config.Hub.OutboxEnabled {
		pool, err = setupDatabase(ctx)
		if err != nil {
			return nil, err
		}
		appender = outbox.NewRepository(pool)
	}

	h := hub.NewHub(clockwork.NewRealClock(), appender, snapshots)
	svc := gateway.NewService(h, gateway.DefaultConfig())

	return &Services{
		Hub:     h,
		Gateway: svc,
		pool:    pool,
	}, nil
}

func (s *Services) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
