package rules

import (
	"trade_core/internal/modules/config"
	"trade_core/internal/modules/rules/service"
	"trade_core/internal/modules/rules/service/file"
	"trade_core/internal/modules/rules/service/pg"
	"trade_core/pkg/db"

	"go.uber.org/fx"
)

// Module поднимает компилятор правил и их хранилище.
// Без DSN переключаемся на файловый стор — демо-режим.
func Module() fx.Option {
	return fx.Module("rules",
		fx.Provide(
			service.NewEvaluator, // *service.Evaluator
			func(cfg *config.Config, tm *db.PgTxManager) service.Store {
				if tm != nil {
					return pg.New(tm)
				}
				return file.New(cfg.Rules.Path)
			},
		),
	)
}
