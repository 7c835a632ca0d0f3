package barcache

import (
	"trade_core/internal/modules/barcache/service"
	"trade_core/internal/modules/config"

	"go.uber.org/fx"
)

// Module поднимает пер-символьный кеш финализированных свечей.
func Module() fx.Option {
	return fx.Module("barcache",
		fx.Provide(
			func(cfg *config.Config) *service.Cache {
				return service.New(cfg.Cache.Capacity)
			},
		),
	)
}
