package service

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"trade_core/internal/helper"
	"trade_core/internal/models"
	"trade_core/internal/modules/config"
	"trade_core/internal/session"
	"trade_core/pkg/logger"

	busservice "trade_core/internal/modules/bus/service"
	cacheservice "trade_core/internal/modules/barcache/service"
)

type ServiceNotifier interface {
	SendService(ctx context.Context, format string, args ...any)
}

// accum — мутабельный аккумулятор свечи-в-работе. Живёт только внутри
// движка; наружу уходит неизменяемый models.Bar.
type accum struct {
	startMs int64
	endMs   int64
	seq     int64
	open    float64
	high    float64
	low     float64
	close   float64
	volume  float64
	ticks   int
}

type subState struct {
	symbol string
	tf     string
	tfMin  int

	acc        *accum
	reconciled map[int64]struct{}
	lastSeq    int64 // последний эмитнутый seq, -1 до первой эмиссии

	stop    chan struct{}
	tickSub int64
	aggSub  int64
}

// Engine — стейт-машина per (symbol, timeframe): no-bar -> accumulating ->
// finalized. Тики сворачиваются в OHLCV; границу закрывает либо тик за
// пределами бакета, либо секундный поll (чтобы неликвид не держал свечу
// открытой вечно). Таймеры принадлежат подписке и гасятся на Unsubscribe.
type Engine struct {
	cfg   *config.Config
	bus   *busservice.Bus
	cache *cacheservice.Cache
	cal   *session.Calendar
	n     ServiceNotifier

	mu   sync.Mutex
	subs map[string]*subState

	// подменяется в тестах
	now func() time.Time
}

func NewEngine(cfg *config.Config, b *busservice.Bus, c *cacheservice.Cache, cal *session.Calendar, n ServiceNotifier) *Engine {
	return &Engine{
		cfg:   cfg,
		bus:   b,
		cache: c,
		cal:   cal,
		n:     n,
		subs:  make(map[string]*subState),
		now:   time.Now,
	}
}

// Subscribe заводит аккумулятор и два таймера: microbar-heartbeat и
// принудительную финализацию. Идемпотентен по ключу.
func (e *Engine) Subscribe(symbol, tf string) error {
	tf = helper.NormTF(tf)
	tfMin := helper.TFMinutes(tf)
	if symbol == "" || tfMin <= 0 {
		return errBadKey(symbol, tf)
	}

	k := helper.CacheKey(symbol, tf)

	e.mu.Lock()
	if _, ok := e.subs[k]; ok {
		e.mu.Unlock()
		return nil
	}
	st := &subState{
		symbol:     symbol,
		tf:         tf,
		tfMin:      tfMin,
		reconciled: make(map[int64]struct{}),
		lastSeq:    -1,
		stop:       make(chan struct{}),
	}
	e.subs[k] = st
	e.mu.Unlock()

	st.tickSub = e.bus.Subscribe(models.Topic{Kind: models.KindTick, Symbol: symbol}, func(ev models.Event) {
		te, ok := ev.(models.TickEvent)
		if !ok {
			return
		}
		e.onTick(k, te.Tick)
	})

	// авторитетные агрегаты минутные — реконсилируем только базовый 1m
	if tf == "1m" {
		st.aggSub = e.bus.Subscribe(models.Topic{Kind: models.KindAggregate, Symbol: symbol}, func(ev models.Event) {
			ae, ok := ev.(models.AggregateEvent)
			if !ok {
				return
			}
			e.onAggregate(k, ae.Aggregate)
		})
	}

	go e.runTimers(st)

	log.Printf("[AGG] subscribe %s", k)
	return nil
}

// Unsubscribe синхронно гасит оба таймера и снимает слушателей шины.
// Недоделанный аккумулятор отбрасывается: частичную свечу не эмитим.
func (e *Engine) Unsubscribe(symbol, tf string) {
	k := helper.CacheKey(symbol, tf)

	e.mu.Lock()
	st, ok := e.subs[k]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.subs, k)
	st.acc = nil
	e.mu.Unlock()

	close(st.stop)
	e.bus.Unsubscribe(st.tickSub)
	e.bus.Unsubscribe(st.aggSub)
	log.Printf("[AGG] unsubscribe %s", k)
}

// Shutdown снимает все подписки. Для fx OnStop.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	keys := make([]*subState, 0, len(e.subs))
	for _, st := range e.subs {
		keys = append(keys, st)
	}
	e.mu.Unlock()

	for _, st := range keys {
		e.Unsubscribe(st.symbol, st.tf)
	}
}

func (e *Engine) runTimers(st *subState) {
	hbEvery := e.cfg.Aggregator.MicrobarInterval
	if hbEvery <= 0 {
		hbEvery = 100 * time.Millisecond
	}
	pollEvery := e.cfg.Aggregator.FinalizePoll
	if pollEvery <= 0 {
		pollEvery = time.Second
	}

	hb := time.NewTicker(hbEvery)
	poll := time.NewTicker(pollEvery)
	defer hb.Stop()
	defer poll.Stop()

	for {
		select {
		case <-st.stop:
			return
		case <-hb.C:
			e.heartbeat(st)
		case <-poll.C:
			e.forceFinalize(st)
		}
	}
}

func (e *Engine) onTick(key string, t models.Tick) {
	var out []models.Event

	e.mu.Lock()
	st := e.subs[key]
	if st == nil {
		e.mu.Unlock()
		return
	}

	if st.acc != nil && t.TimestampMs >= st.acc.endMs {
		if ev := e.finalizeLocked(st, "tick-boundary"); ev != nil {
			out = append(out, ev)
		}
	}

	if st.acc == nil {
		startMs := helper.FloorBucketMs(t.TimestampMs, st.tfMin, e.cal.Location())
		st.acc = &accum{
			startMs: startMs,
			endMs:   helper.BucketEndMs(startMs, st.tfMin, e.cal.Location()),
			seq:     models.SeqFor(startMs),
			open:    t.Price,
			high:    t.Price,
			low:     t.Price,
			close:   t.Price,
			volume:  t.Size,
			ticks:   1,
		}
		e.mu.Unlock()
		e.publishAll(out)
		return
	}

	if t.TimestampMs < st.acc.startMs {
		// опоздавший тик из прошлого бакета — его свеча уже ушла
		log.Printf("[AGG] late tick %s ts=%d < bucket %d, drop", key, t.TimestampMs, st.acc.startMs)
		e.mu.Unlock()
		e.publishAll(out)
		return
	}

	st.acc.high = math.Max(st.acc.high, t.Price)
	st.acc.low = math.Min(st.acc.low, t.Price)
	st.acc.close = t.Price
	st.acc.volume += t.Size
	st.acc.ticks++
	e.mu.Unlock()

	e.publishAll(out)
}

// forceFinalize закрывает бакет по часам, когда тики кончились:
// иначе последняя свеча неликвида не закроется никогда.
func (e *Engine) forceFinalize(st *subState) {
	var out []models.Event

	e.mu.Lock()
	if st.acc != nil && e.now().UnixMilli() >= st.acc.endMs {
		if ev := e.finalizeLocked(st, "timer"); ev != nil {
			out = append(out, ev)
		}
	}
	e.mu.Unlock()

	e.publishAll(out)
}

func (e *Engine) heartbeat(st *subState) {
	e.mu.Lock()
	if st.acc == nil {
		e.mu.Unlock()
		return
	}
	mb := models.Microbar{
		Symbol:    st.symbol,
		Timeframe: st.tf,
		Seq:       st.acc.seq,
		StartMs:   st.acc.startMs,
		Open:      st.acc.open,
		High:      st.acc.high,
		Low:       st.acc.low,
		Close:     st.acc.close,
		Volume:    st.acc.volume,
		AtMs:      e.now().UnixMilli(),
	}
	e.mu.Unlock()

	e.bus.Publish(models.MicrobarEvent{Microbar: mb})
}

// finalizeLocked переводит аккумулятор в неизменяемую свечу.
// Вызывается под e.mu; событие публикует вызывающий уже без лока.
func (e *Engine) finalizeLocked(st *subState, reason string) models.Event {
	acc := st.acc
	st.acc = nil
	if acc == nil {
		return nil
	}

	if _, done := st.reconciled[acc.seq]; done {
		// авторитетный агрегат уже занял этот seq — тиковую версию давим
		log.Printf("[AGG] %s@%s seq=%d already reconciled, suppress (%s)", st.symbol, st.tf, acc.seq, reason)
		return nil
	}

	bar := models.Bar{
		Symbol:    st.symbol,
		Timeframe: st.tf,
		Seq:       acc.seq,
		StartMs:   acc.startMs,
		EndMs:     acc.endMs,
		Open:      acc.open,
		High:      acc.high,
		Low:       acc.low,
		Close:     acc.close,
		Volume:    acc.volume,
	}
	if !bar.Valid() {
		// fail-closed: неполную/испорченную свечу вниз не пускаем
		logger.Error("aggregator: refuse emission %s@%s seq=%d, non-finite OHLCV (%s)", st.symbol, st.tf, acc.seq, reason)
		return nil
	}
	if bar.Seq < st.lastSeq {
		log.Printf("[AGG] %s@%s out-of-order seq=%d < %d, drop (%s)", st.symbol, st.tf, bar.Seq, st.lastSeq, reason)
		return nil
	}
	st.lastSeq = bar.Seq

	e.cache.Put(st.symbol, st.tf, []models.Bar{bar})
	return models.BarFinalEvent{Bar: bar}
}

// onAggregate — реконсиляция с авторитетным минутным агрегатом.
// Для данного seq осмысленно происходит не более одного раза; после неё
// тиковая пере-эмиссия того же seq подавлена.
func (e *Engine) onAggregate(key string, agg models.Aggregate) {
	var out []models.Event

	e.mu.Lock()
	st := e.subs[key]
	if st == nil {
		e.mu.Unlock()
		return
	}
	if _, done := st.reconciled[agg.Seq]; done {
		e.mu.Unlock()
		return
	}
	if !agg.Valid() {
		logger.Error("aggregator: refuse reconcile %s seq=%d, non-finite aggregate", key, agg.Seq)
		e.mu.Unlock()
		return
	}

	st.reconciled[agg.Seq] = struct{}{}
	e.pruneReconciledLocked(st)

	// если этот бакет ещё копится — его эмиссия больше не нужна
	if st.acc != nil && st.acc.seq == agg.Seq {
		st.acc = nil
	}

	startMs := agg.Seq * 60_000
	bar := models.Bar{
		Symbol:     st.symbol,
		Timeframe:  st.tf,
		Seq:        agg.Seq,
		StartMs:    startMs,
		EndMs:      startMs + 60_000,
		Open:       agg.Open,
		High:       agg.High,
		Low:        agg.Low,
		Close:      agg.Close,
		Volume:     agg.Volume,
		Reconciled: true,
	}

	prev, replaced := e.cache.UpsertBySeq(st.symbol, st.tf, bar)
	if replaced && !prev.Reconciled {
		e.checkVolumeDrift(st, prev, agg)
	}

	// дубликат seq сворачивается к последнему реконсилированному значению;
	// для старых seq событие не шлём, чтобы не ломать монотонность эмиссии
	if bar.Seq >= st.lastSeq {
		st.lastSeq = bar.Seq
		out = append(out, models.BarFinalEvent{Bar: bar})
	}
	e.mu.Unlock()

	e.publishAll(out)
}

// checkVolumeDrift — дрейф объёма тиковой свечи против официальной.
// В extended hours тонкий рынок даёт дрейф штатно, алармим только в RTH.
func (e *Engine) checkVolumeDrift(st *subState, tickBuilt models.Bar, agg models.Aggregate) {
	if e.cal.Classify(tickBuilt.StartMs) != session.RTH {
		return
	}
	base := math.Max(math.Abs(agg.Volume), 1e-9)
	driftPct := math.Abs(tickBuilt.Volume-agg.Volume) / base * 100
	if driftPct > e.cfg.Aggregator.DriftWarnPct {
		logger.Warn("aggregator: volume drift %.1f%% %s@%s seq=%d tick=%.2f official=%.2f",
			driftPct, st.symbol, st.tf, agg.Seq, tickBuilt.Volume, agg.Volume)
		if e.n != nil {
			e.n.SendService(context.Background(), "⚠️ дрейф объёма %.1f%% по %s seq=%d", driftPct, st.symbol, agg.Seq)
		}
	}
}

// pruneReconciledLocked держит множество реконсилированных seq ограниченным.
func (e *Engine) pruneReconciledLocked(st *subState) {
	const maxTracked = 8192
	if len(st.reconciled) <= maxTracked {
		return
	}
	cutoff := st.lastSeq - int64(e.cache.Capacity())
	for seq := range st.reconciled {
		if seq < cutoff {
			delete(st.reconciled, seq)
		}
	}
}

func (e *Engine) publishAll(evs []models.Event) {
	for _, ev := range evs {
		e.bus.Publish(ev)
	}
}

// SetClock — только для тестов.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }
