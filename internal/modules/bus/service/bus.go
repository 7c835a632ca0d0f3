package service

import (
	"sync"

	"trade_core/internal/models"
	"trade_core/pkg/logger"
)

// Handler вызывается синхронно внутри Publish.
type Handler func(ev models.Event)

type subscriber struct {
	id    int64
	topic models.Topic
	fn    Handler
}

// Bus — типизированный in-process pub/sub по ключу (kind, symbol[, timeframe]).
// Publish — синхронный fan-out в порядке подписки; паника подписчика
// изолируется и логируется, остальные получают событие.
// Subscribe/Unsubscribe идемпотентны и безопасны изнутри хендлера:
// доставка идёт по снимку списка подписчиков.
type Bus struct {
	mu     sync.RWMutex
	nextID int64
	subs   map[models.EventKind][]*subscriber
}

func New() *Bus {
	return &Bus{subs: make(map[models.EventKind][]*subscriber)}
}

// Subscribe регистрирует хендлер на топик. Пустые Symbol/Timeframe — wildcard.
// Возвращает id подписки для Unsubscribe.
func (b *Bus) Subscribe(topic models.Topic, fn Handler) int64 {
	if fn == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subs[topic.Kind] = append(b.subs[topic.Kind], &subscriber{id: id, topic: topic, fn: fn})
	return id
}

// Unsubscribe снимает подписку. Повторный вызов — no-op.
func (b *Bus) Unsubscribe(id int64) {
	if id == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for kind, list := range b.subs {
		n := list[:0]
		for _, s := range list {
			if s.id != id {
				n = append(n, s)
			}
		}
		if len(n) == 0 {
			delete(b.subs, kind)
		} else {
			b.subs[kind] = n
		}
	}
}

func matches(sub models.Topic, ev models.Topic) bool {
	if sub.Symbol != "" && sub.Symbol != ev.Symbol {
		return false
	}
	if sub.Timeframe != "" && sub.Timeframe != ev.Timeframe {
		return false
	}
	return true
}

// Publish доставляет событие всем текущим подписчикам до возврата.
// Порядок между разными kind не гарантируется; внутри одного вызова —
// порядок подписки.
func (b *Bus) Publish(ev models.Event) {
	topic := ev.Topic()

	b.mu.RLock()
	list := b.subs[topic.Kind]
	snapshot := make([]*subscriber, 0, len(list))
	for _, s := range list {
		if matches(s.topic, topic) {
			snapshot = append(snapshot, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range snapshot {
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s *subscriber, ev models.Event) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("bus: subscriber %d panic on %s: %v", s.id, ev.Kind(), p)
		}
	}()
	s.fn(ev)
}

// SubscriberCount — для тестов и healthz.
func (b *Bus) SubscriberCount(kind models.EventKind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}
