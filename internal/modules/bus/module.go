package bus

import (
	"trade_core/internal/modules/bus/service"

	"go.uber.org/fx"
)

// Module поднимает общую шину событий.
func Module() fx.Option {
	return fx.Module("bus",
		fx.Provide(
			service.New, // *service.Bus
		),
	)
}
