package postgres

import (
	"context"
	"fmt"

	"trade_core/internal/modules/config"
	"trade_core/pkg/db"

	"go.uber.org/fx"
)

// Module поднимает пул Postgres. Пустой DSN — валидный демо-режим:
// отдаём nil-менеджер, потребители переключаются на файловые сторы.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, cfg *config.Config) (*db.PgTxManager, error) {
				if cfg.DB == "" {
					return nil, nil
				}
				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: cfg.DB,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				err = poolMaster.Ping(ctx)
				if err != nil {
					return nil, err
				}

				return db.NewPgTxManager(poolMaster), nil
			},
		),
	)
}
