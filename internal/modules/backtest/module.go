package backtest

import (
	"trade_core/internal/modules/backtest/service"

	"go.uber.org/fx"
)

// Module поднимает движок бэктеста.
func Module() fx.Option {
	return fx.Module("backtest",
		fx.Provide(
			service.NewEngine, // *service.Engine
		),
	)
}
