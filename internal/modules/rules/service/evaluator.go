package service

import (
	"fmt"
	"sync"

	"trade_core/internal/models"
)

// Evaluator — компилятор с кешем артефактов по ключу (id, version).
// Обновление правила инвалидирует все его версии.
type Evaluator struct {
	mu       sync.RWMutex
	compiled map[string]*Compiled // id@version
}

func NewEvaluator() *Evaluator {
	return &Evaluator{compiled: make(map[string]*Compiled)}
}

func cacheKey(id string, version int) string { return fmt.Sprintf("%s@%d", id, version) }

// Compile возвращает кешированный артефакт либо компилирует и кеширует.
func (e *Evaluator) Compile(def models.RuleDefinition) (*Compiled, error) {
	k := cacheKey(def.ID, def.Version)

	e.mu.RLock()
	c, ok := e.compiled[k]
	e.mu.RUnlock()
	if ok {
		return c, nil
	}

	c, err := Compile(def)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.compiled[k] = c
	e.mu.Unlock()
	return c, nil
}

// Invalidate выбрасывает все скомпилированные версии правила.
func (e *Evaluator) Invalidate(id string) {
	prefix := id + "@"
	e.mu.Lock()
	defer e.mu.Unlock()
	for k := range e.compiled {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(e.compiled, k)
		}
	}
}

// CachedVersions — сколько артефактов в кеше (для тестов/healthz).
func (e *Evaluator) CachedVersions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// EvaluateBar — компиляция (из кеша) + вычисление по свече. Ошибка
// компиляции тоже деградирует в "не прошло": конвейер не останавливаем,
// владельцу правила она уже отдана при регистрации.
func (e *Evaluator) EvaluateBar(def models.RuleDefinition, bar models.Bar, indicators map[string]float64) models.EvaluatedRule {
	c, err := e.Compile(def)
	if err != nil {
		return models.EvaluatedRule{
			RuleID:      def.ID,
			Version:     def.Version,
			Signal:      models.DirFlat,
			BarSeq:      bar.Seq,
			TimestampMs: bar.EndMs,
		}
	}
	return c.Evaluate(Scope(bar, indicators, def.Parameters), bar.Seq, bar.EndMs)
}
