package history

import (
	"trade_core/internal/modules/config"
	"trade_core/internal/modules/history/service"
	"trade_core/internal/session"

	cacheservice "trade_core/internal/modules/barcache/service"

	"go.uber.org/fx"
)

// Module поднимает ярусный резолвер истории.
func Module() fx.Option {
	return fx.Module("history",
		fx.Provide(
			func(cfg *config.Config) service.Provider {
				if cfg.History.BaseURL == "" {
					return nil
				}
				return service.NewRESTProvider(cfg.History.BaseURL, cfg.History.Timeout)
			},
			func(cfg *config.Config, cache *cacheservice.Cache, p service.Provider, cal *session.Calendar) *service.Resolver {
				return service.NewResolver(cache, p, cal, cfg.History.Threshold)
			},
		),
	)
}
