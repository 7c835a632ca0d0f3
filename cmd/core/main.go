package main

import (
	"context"
	"log"

	"trade_core/internal/modules/aggregator"
	"trade_core/internal/modules/backtest"
	"trade_core/internal/modules/barcache"
	"trade_core/internal/modules/bus"
	"trade_core/internal/modules/config"
	"trade_core/internal/modules/feed"
	"trade_core/internal/modules/health"
	"trade_core/internal/modules/history"
	"trade_core/internal/modules/postgres"
	"trade_core/internal/modules/rules"
	"trade_core/internal/notify"
	"trade_core/internal/runner"
	"trade_core/pkg/logger"
	"trade_core/pkg/tracing"

	"go.uber.org/fx"
)

func main() {
	logger.SetServiceName("trade_core")
	logger.Init()

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		postgres.Module(),
		bus.Module(),
		notify.Module(),
		health.Module(),
		barcache.Module(),
		aggregator.Module(),
		history.Module(),
		rules.Module(),
		backtest.Module(),
		feed.Module(),
		runner.Module(),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) {
			if cfg.Tracing.Host == "" {
				return
			}
			tracing.SetServiceName("trade_core")
			_, closeTracer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Tracing.Host,
				Port: cfg.Tracing.Port,
			})
			if err != nil {
				log.Printf("[MAIN] tracer init: %v", err)
				return
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					closeTracer()
					return nil
				},
			})
		}),
	)
	app.Run()
}
