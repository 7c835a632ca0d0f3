package service

import (
	"sort"
	"sync"

	"trade_core/internal/helper"
	"trade_core/internal/models"
	"trade_core/pkg/logger"
)

const DefaultCapacity = 5000

// Cache — ограниченный пер-символьный стор финализированных свечей.
// Серия всегда отсортирована по Seq и не содержит дубликатов: повторный
// seq сворачивается к последнему значению, где бы он ни стоял. Наружу
// отдаются только копии; переполнение срезается строго с головы.
type Cache struct {
	mu  sync.RWMutex
	cap int
	// symbol@timeframe -> свечи в порядке seq
	data map[string][]models.Bar
}

func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		cap:  capacity,
		data: make(map[string][]models.Bar),
	}
}

// mergeBySeq вставляет свечу с сохранением порядка seq; существующий
// seq заменяется на месте. Бэкафилл истории пересекается с живой
// серией — простой append здесь давал бы дубликаты, ломающие gap-fill.
func mergeBySeq(cur []models.Bar, b models.Bar) ([]models.Bar, models.Bar, bool) {
	i := sort.Search(len(cur), func(i int) bool { return cur[i].Seq >= b.Seq })
	if i < len(cur) && cur[i].Seq == b.Seq {
		prev := cur[i]
		cur[i] = b
		return cur, prev, true
	}
	cur = append(cur, models.Bar{})
	copy(cur[i+1:], cur[i:])
	cur[i] = b
	return cur, models.Bar{}, false
}

// Put валидирует и вливает свечи в серию, подрезая до ёмкости.
// Возвращает число принятых; свечи с NaN/Inf отбрасываются с логом,
// не отравляя стор.
func (c *Cache) Put(symbol, tf string, bars []models.Bar) int {
	if symbol == "" || len(bars) == 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	k := helper.CacheKey(symbol, tf)
	cur := c.data[k]
	accepted := 0
	for _, b := range bars {
		if !b.Valid() {
			logger.Error("barcache: drop invalid bar %s seq=%d", k, b.Seq)
			continue
		}
		cur, _, _ = mergeBySeq(cur, b)
		accepted++
	}
	if len(cur) > c.cap {
		trimmed := make([]models.Bar, c.cap)
		copy(trimmed, cur[len(cur)-c.cap:])
		cur = trimmed
	}
	c.data[k] = cur
	return accepted
}

// UpsertBySeq — замена по Seq либо вставка по порядку. Используется
// только реконсиляцией. Возвращает прежнее значение, если замена
// состоялась.
func (c *Cache) UpsertBySeq(symbol, tf string, bar models.Bar) (models.Bar, bool) {
	if !bar.Valid() {
		logger.Error("barcache: refuse invalid upsert %s@%s seq=%d", symbol, tf, bar.Seq)
		return models.Bar{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	k := helper.CacheKey(symbol, tf)
	cur, prev, replaced := mergeBySeq(c.data[k], bar)
	if len(cur) > c.cap {
		trimmed := make([]models.Bar, c.cap)
		copy(trimmed, cur[len(cur)-c.cap:])
		cur = trimmed
	}
	c.data[k] = cur
	return prev, replaced
}

// GetSince возвращает свечи с Seq строго больше заданного, в порядке кеша.
// Пустой результат — валидный финальный ответ, не ошибка: падать на
// "последние N" здесь нельзя, иначе консьюмер зациклится на stale seq.
func (c *Cache) GetSince(symbol, tf string, seq int64) []models.Bar {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cur := c.data[helper.CacheKey(symbol, tf)]
	out := make([]models.Bar, 0)
	for _, b := range cur {
		if b.Seq > seq {
			out = append(out, b)
		}
	}
	return out
}

// GetRecent — последние n свечей (или меньше, если нет).
func (c *Cache) GetRecent(symbol, tf string, n int) []models.Bar {
	if n <= 0 {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	cur := c.data[helper.CacheKey(symbol, tf)]
	if n > len(cur) {
		n = len(cur)
	}
	out := make([]models.Bar, n)
	copy(out, cur[len(cur)-n:])
	return out
}

// GetBySeq — точечное чтение (для реконсиляции и тестов).
func (c *Cache) GetBySeq(symbol, tf string, seq int64) (models.Bar, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cur := c.data[helper.CacheKey(symbol, tf)]
	for i := len(cur) - 1; i >= 0; i-- {
		if cur[i].Seq == seq {
			return cur[i], true
		}
	}
	return models.Bar{}, false
}

// Capacity — настроенная ёмкость на ключ.
func (c *Cache) Capacity() int { return c.cap }

// Len — размер серии (для healthz и тестов).
func (c *Cache) Len(symbol, tf string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data[helper.CacheKey(symbol, tf)])
}
