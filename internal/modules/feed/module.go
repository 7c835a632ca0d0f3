package feed

import (
	"context"

	"trade_core/internal/modules/config"
	"trade_core/internal/modules/feed/service"
	"trade_core/internal/notify"

	"go.uber.org/fx"
)

// Module поднимает источник тиков: живой WS либо симулятор.
func Module() fx.Option {
	return fx.Module("feed",
		fx.Provide(
			func(tg *notify.Telegram) service.ServiceNotifier { return tg },
			service.NewClient,    // *service.Client
			service.NewSimulator, // *service.Simulator
		),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, c *service.Client, sim *service.Simulator, ctx context.Context) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					if cfg.Feed.Simulate || cfg.Feed.URL == "" {
						go sim.Start(ctx)
					} else {
						go c.Start(ctx)
					}
					return nil
				},
			})
		}),
	)
}
