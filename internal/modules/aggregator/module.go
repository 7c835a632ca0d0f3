package aggregator

import (
	"context"

	"trade_core/internal/modules/aggregator/service"
	"trade_core/internal/modules/config"
	"trade_core/internal/notify"

	"go.uber.org/fx"
)

// Module поднимает агрегатор тиков и подписывает его на весь watchlist.
func Module() fx.Option {
	return fx.Module("aggregator",
		fx.Provide(
			func(tg *notify.Telegram) service.ServiceNotifier { return tg },
			service.NewEngine, // *service.Engine
		),
		fx.Invoke(func(lc fx.Lifecycle, e *service.Engine, cfg *config.Config) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					for _, sym := range cfg.Feed.Symbols {
						for _, tf := range cfg.Feed.Timeframes {
							if err := e.Subscribe(sym, tf); err != nil {
								return err
							}
						}
					}
					return nil
				},
				OnStop: func(ctx context.Context) error {
					e.Shutdown()
					return nil
				},
			})
		}),
	)
}
