package runner

import (
	"context"

	"trade_core/internal/models"
	"trade_core/internal/notify"

	"go.uber.org/fx"
)

func newSignalsChan() chan models.Signal {
	return make(chan models.Signal, 4096)
}
func asSendOnlySignals(ch chan models.Signal) chan<- models.Signal { return ch }

// Module поднимает живой конвейер правил поверх шины.
func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			newSignalsChan,    // chan models.Signal
			asSendOnlySignals, // chan<- models.Signal
			func(tg *notify.Telegram) ServiceNotifier { return tg },
			NewRouter, // *Router
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			r *Router,
			sigs chan models.Signal,
			tg *notify.Telegram,
			ctx context.Context,
		) {
			drainStop := make(chan struct{})
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					r.Start(ctx)
					go func() {
						for {
							select {
							case <-ctx.Done():
								return
							case <-drainStop:
								return
							case sig := <-sigs:
								tg.SendSignal(sig)
							}
						}
					}()
					return nil
				},
				OnStop: func(_ context.Context) error {
					r.Stop()
					close(drainStop)
					return nil
				},
			})
		}),
	)
}
