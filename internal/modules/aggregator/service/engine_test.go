package service

import (
	"sync"
	"testing"
	"time"

	"trade_core/internal/models"
	"trade_core/internal/modules/config"
	"trade_core/internal/session"

	busservice "trade_core/internal/modules/bus/service"
	cacheservice "trade_core/internal/modules/barcache/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine *Engine
	bus    *busservice.Bus
	cache  *cacheservice.Cache

	mu    sync.Mutex
	final []models.Bar
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cal, err := session.NewCalendar("America/New_York")
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Aggregator.MicrobarInterval = time.Hour // heartbeat в тестах не нужен
	cfg.Aggregator.FinalizePoll = time.Hour
	cfg.Aggregator.DriftWarnPct = 5.0

	f := &fixture{
		bus:   busservice.New(),
		cache: cacheservice.New(100),
	}
	f.engine = NewEngine(cfg, f.bus, f.cache, cal, nil)

	f.bus.Subscribe(models.Topic{Kind: models.KindBarFinal}, func(ev models.Event) {
		be, ok := ev.(models.BarFinalEvent)
		if !ok {
			return
		}
		f.mu.Lock()
		f.final = append(f.final, be.Bar)
		f.mu.Unlock()
	})
	return f
}

func (f *fixture) tick(ts int64, price, size float64) {
	f.bus.Publish(models.TickEvent{Tick: models.Tick{Symbol: "SPY", TimestampMs: ts, Price: price, Size: size}})
}

func (f *fixture) finals() []models.Bar {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Bar, len(f.final))
	copy(out, f.final)
	return out
}

func TestTickBoundaryFinalizesBar(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Subscribe("SPY", "1m"))
	defer f.engine.Shutdown()

	f.tick(0, 100, 10)
	f.tick(61_000, 101, 5) // тик следующей минуты закрывает бакет 0

	got := f.finals()
	require.Len(t, got, 1)
	b := got[0]
	assert.Equal(t, int64(0), b.Seq)
	assert.Equal(t, int64(0), b.StartMs)
	assert.Equal(t, int64(60_000), b.EndMs)
	assert.Equal(t, 100.0, b.Open)
	assert.Equal(t, 100.0, b.High)
	assert.Equal(t, 100.0, b.Low)
	assert.Equal(t, 100.0, b.Close)
	assert.Equal(t, 10.0, b.Volume)
	assert.False(t, b.Reconciled)

	cached, ok := f.cache.GetBySeq("SPY", "1m", 0)
	require.True(t, ok)
	assert.Equal(t, b, cached)
}

func TestOHLCVFolding(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Subscribe("SPY", "1m"))
	defer f.engine.Shutdown()

	f.tick(1_000, 100, 10)
	f.tick(10_000, 103, 2)
	f.tick(20_000, 99, 3)
	f.tick(59_000, 101, 5)
	f.tick(60_000, 102, 1) // граница

	got := f.finals()
	require.Len(t, got, 1)
	b := got[0]
	assert.Equal(t, 100.0, b.Open)
	assert.Equal(t, 103.0, b.High)
	assert.Equal(t, 99.0, b.Low)
	assert.Equal(t, 101.0, b.Close)
	assert.Equal(t, 20.0, b.Volume)
}

func TestLateTickDropped(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Subscribe("SPY", "1m"))
	defer f.engine.Shutdown()

	f.tick(61_000, 101, 5)
	f.tick(30_000, 55, 99) // опоздавший тик из закрытого бакета
	f.tick(125_000, 102, 1)

	got := f.finals()
	require.Len(t, got, 1)
	b := got[0]
	assert.Equal(t, int64(1), b.Seq)
	assert.Equal(t, 101.0, b.Open)
	assert.Equal(t, 101.0, b.Low)
	assert.Equal(t, 5.0, b.Volume)
}

func TestForceFinalizeByClock(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Subscribe("SPY", "1m"))
	defer f.engine.Shutdown()

	f.tick(1_000, 100, 10)

	// часы ещё внутри бакета — не закрываем
	f.engine.SetClock(func() time.Time { return time.UnixMilli(59_000) })
	st := f.engine.subs["SPY@1m"]
	f.engine.forceFinalize(st)
	assert.Empty(t, f.finals())

	f.engine.SetClock(func() time.Time { return time.UnixMilli(60_000) })
	f.engine.forceFinalize(st)

	got := f.finals()
	require.Len(t, got, 1)
	assert.Equal(t, int64(0), got[0].Seq)
}

// Heartbeat снимает текущее состояние аккумулятора в Microbar;
// без открытого бакета он молчит.
func TestHeartbeatSnapshotsBarInProgress(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Subscribe("SPY", "1m"))
	defer f.engine.Shutdown()

	var mbs []models.Microbar
	f.bus.Subscribe(models.Topic{Kind: models.KindMicrobar}, func(ev models.Event) {
		me, ok := ev.(models.MicrobarEvent)
		if !ok {
			return
		}
		f.mu.Lock()
		mbs = append(mbs, me.Microbar)
		f.mu.Unlock()
	})

	st := f.engine.subs["SPY@1m"]

	f.engine.heartbeat(st)
	assert.Empty(t, mbs)

	f.tick(1_000, 100, 10)
	f.tick(20_000, 103, 2)
	f.engine.SetClock(func() time.Time { return time.UnixMilli(21_000) })
	f.engine.heartbeat(st)
	f.engine.heartbeat(st)

	require.Len(t, mbs, 2) // каждый тик таймера — свежий снимок
	mb := mbs[0]
	assert.Equal(t, "SPY", mb.Symbol)
	assert.Equal(t, "1m", mb.Timeframe)
	assert.Equal(t, int64(0), mb.Seq)
	assert.Equal(t, int64(0), mb.StartMs)
	assert.Equal(t, 100.0, mb.Open)
	assert.Equal(t, 103.0, mb.High)
	assert.Equal(t, 100.0, mb.Low)
	assert.Equal(t, 103.0, mb.Close)
	assert.Equal(t, 12.0, mb.Volume)
	assert.Equal(t, int64(21_000), mb.AtMs)

	// снимок не финален: кеш и bar_final не затронуты
	assert.Equal(t, 0, f.cache.Len("SPY", "1m"))
	assert.Empty(t, f.finals())
}

func TestReconcileReplacesAndSuppresses(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Subscribe("SPY", "1m"))
	defer f.engine.Shutdown()

	f.tick(0, 100, 10)
	f.tick(61_000, 101, 5)

	agg := models.Aggregate{Symbol: "SPY", Seq: 0, Open: 100, High: 100.5, Low: 99.5, Close: 100.2, Volume: 12}
	f.bus.Publish(models.AggregateEvent{Aggregate: agg})

	got := f.finals()
	require.Len(t, got, 2)
	rec := got[1]
	assert.True(t, rec.Reconciled)
	assert.Equal(t, int64(0), rec.Seq)
	assert.Equal(t, 100.2, rec.Close)
	assert.Equal(t, 12.0, rec.Volume)

	cached, ok := f.cache.GetBySeq("SPY", "1m", 0)
	require.True(t, ok)
	assert.True(t, cached.Reconciled)

	// дубликат агрегата — no-op
	f.bus.Publish(models.AggregateEvent{Aggregate: agg})
	assert.Len(t, f.finals(), 2)
}

// Агрегат для бакета, который ещё копится: тиковая версия этого seq
// больше никогда не эмитится.
func TestReconcileSuppressesInFlightBucket(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Subscribe("SPY", "1m"))
	defer f.engine.Shutdown()

	f.tick(5_000, 100, 10)
	f.bus.Publish(models.AggregateEvent{Aggregate: models.Aggregate{
		Symbol: "SPY", Seq: 0, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 20,
	}})
	f.tick(61_000, 102, 1) // граница бакета 0: тиковая свеча подавлена

	got := f.finals()
	require.Len(t, got, 1)
	assert.True(t, got[0].Reconciled)
	assert.Equal(t, 100.5, got[0].Close)
}

// Запоздавший агрегат для старого seq обновляет кеш, но событие не шлёт:
// эмиссия остаётся монотонной по seq.
func TestStaleAggregateUpdatesCacheSilently(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Subscribe("SPY", "1m"))
	defer f.engine.Shutdown()

	f.tick(0, 100, 10)
	f.tick(61_000, 101, 5)
	f.tick(125_000, 102, 1) // закрыли seq 0 и 1

	require.Len(t, f.finals(), 2)

	f.bus.Publish(models.AggregateEvent{Aggregate: models.Aggregate{
		Symbol: "SPY", Seq: 0, Open: 100, High: 100, Low: 100, Close: 100.1, Volume: 11,
	}})

	assert.Len(t, f.finals(), 2)
	cached, ok := f.cache.GetBySeq("SPY", "1m", 0)
	require.True(t, ok)
	assert.True(t, cached.Reconciled)
	assert.Equal(t, 100.1, cached.Close)
}

func TestSubscribeValidation(t *testing.T) {
	f := newFixture(t)
	assert.Error(t, f.engine.Subscribe("", "1m"))
	assert.Error(t, f.engine.Subscribe("SPY", "7m"))

	// идемпотентность
	require.NoError(t, f.engine.Subscribe("SPY", "1m"))
	require.NoError(t, f.engine.Subscribe("SPY", "1m"))
	f.engine.Shutdown()
}

func TestUnsubscribeStopsFlow(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Subscribe("SPY", "1m"))

	f.tick(0, 100, 10)
	f.engine.Unsubscribe("SPY", "1m")

	// недокопленная свеча отброшена, новые тики никуда не идут
	f.tick(61_000, 101, 5)
	f.tick(125_000, 102, 1)
	assert.Empty(t, f.finals())

	// повторный unsubscribe — no-op
	f.engine.Unsubscribe("SPY", "1m")
}

func TestFiveMinuteBuckets(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Subscribe("SPY", "5m"))
	defer f.engine.Shutdown()

	f.tick(0, 100, 1)
	f.tick(4*60_000, 104, 1)
	f.tick(5*60_000, 105, 1) // граница 5m-бакета

	got := f.finals()
	require.Len(t, got, 1)
	b := got[0]
	assert.Equal(t, "5m", b.Timeframe)
	assert.Equal(t, int64(0), b.StartMs)
	assert.Equal(t, int64(5*60_000), b.EndMs)
	assert.Equal(t, 104.0, b.Close)
	assert.Equal(t, 2.0, b.Volume)
}
