package service

import (
	"context"
	"log"
	"time"

	"trade_core/internal/helper"
	"trade_core/internal/models"
	"trade_core/internal/session"

	cacheservice "trade_core/internal/modules/barcache/service"

	"github.com/opentracing/opentracing-go"
)

// Request — запрос истории. SinceSeq задаётся вместе с HasSince:
// нулевой seq тоже валиден.
type Request struct {
	Symbol    string
	Timeframe string
	Limit     int
	BeforeMs  int64 // 0 = сейчас
	SinceSeq  int64
	HasSince  bool
}

// Resolver — ярусное чтение истории: кеш -> апстрим -> разреженный кеш ->
// синтетика. Сетевой поход — единственная операция, которая ждёт;
// тиковый поток других символов он не блокирует.
type Resolver struct {
	cache     *cacheservice.Cache
	provider  Provider
	cal       *session.Calendar
	threshold int

	now func() time.Time
}

func NewResolver(cache *cacheservice.Cache, provider Provider, cal *session.Calendar, threshold int) *Resolver {
	if threshold <= 0 {
		threshold = 50
	}
	return &Resolver{
		cache:     cache,
		provider:  provider,
		cal:       cal,
		threshold: threshold,
		now:       time.Now,
	}
}

func (r *Resolver) Resolve(ctx context.Context, req Request) []models.Bar {
	span, ctx := opentracing.StartSpanFromContext(ctx, "history.resolve")
	defer span.Finish()
	span.SetTag("symbol", req.Symbol)
	span.SetTag("timeframe", req.Timeframe)

	tf := helper.NormTF(req.Timeframe)
	limit := req.Limit
	if limit <= 0 {
		limit = 100
	}

	// ярус 1: gap-fill по seq. Пустой ответ — финальный ответ:
	// подмешивать "последние" сюда нельзя, иначе дубликаты у консьюмера.
	if req.HasSince {
		span.SetTag("tier", "cache-since")
		return r.cache.GetSince(req.Symbol, tf, req.SinceSeq)
	}

	// ярус 2: свежий кеш
	want := limit
	if r.threshold < want {
		want = r.threshold
	}
	recent := r.cache.GetRecent(req.Symbol, tf, limit)
	if len(recent) >= want {
		span.SetTag("tier", "cache-recent")
		return recent
	}

	// ярус 3: апстрим + бэкафилл кеша
	if r.provider != nil {
		toMs := req.BeforeMs
		if toMs <= 0 {
			toMs = r.now().UnixMilli()
		}
		tfMin := helper.TFMinutes(tf)
		if tfMin <= 0 {
			tfMin = 1
		}
		fromMs := toMs - int64(limit)*int64(tfMin)*60_000

		bars, err := r.provider.Fetch(ctx, req.Symbol, tfMin, fromMs, toMs)
		if err != nil {
			log.Printf("[HIST] upstream %s@%s: %v, next tier", req.Symbol, tf, err)
		} else if len(bars) > 0 {
			r.cache.Put(req.Symbol, tf, bars)
			if len(bars) > limit {
				bars = bars[len(bars)-limit:]
			}
			span.SetTag("tier", "upstream")
			return bars
		}
	}

	// ярус 4: разреженный кеш лучше, чем ничего
	if len(recent) > 0 {
		span.SetTag("tier", "cache-sparse")
		return recent
	}

	// ярус 5: синтетика, чтобы графикам и правилам было на чём жить
	span.SetTag("tier", "synthetic")
	toMs := req.BeforeMs
	if toMs <= 0 {
		toMs = r.now().UnixMilli()
	}
	log.Printf("[HIST] synthesize %d bars %s@%s", limit, req.Symbol, tf)
	return SynthesizeBars(req.Symbol, tf, limit, toMs, r.cal.Location())
}

// SetClock — только для тестов.
func (r *Resolver) SetClock(now func() time.Time) { r.now = now }
