package notify

import (
	"trade_core/internal/modules/config"

	"go.uber.org/fx"
)

// Module поднимает Telegram-нотифайер (no-op без токена).
func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			func(cfg *config.Config) (*Telegram, error) {
				return NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
			},
		),
	)
}
