package service

import (
	"context"

	"trade_core/internal/models"
)

// Store — хранилище определений правил. Ядру всё равно, как правила
// персистятся; важен только контракт кеш-ключа (id, version).
type Store interface {
	ListActive(ctx context.Context) ([]models.RuleDefinition, error)
	Upsert(ctx context.Context, def models.RuleDefinition) error
	Delete(ctx context.Context, id string) error
}
