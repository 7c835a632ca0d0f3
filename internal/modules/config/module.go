package config

import (
	"trade_core/internal/session"

	"go.uber.org/fx"
)

// NewConfig регистрируем как fx-провайдер. Биржевой календарь живёт
// здесь же: он — чистая функция от настроек.
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
			func(cfg *Config) (*session.Calendar, error) {
				return session.NewCalendar(cfg.Exchange.Timezone)
			},
		),
	)
}
