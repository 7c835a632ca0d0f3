package runner

import (
	"context"
	"log"
	"sync"
	"time"

	"trade_core/internal/models"
	"trade_core/internal/modules/config"
	"trade_core/pkg/logger"

	busservice "trade_core/internal/modules/bus/service"
	rulesservice "trade_core/internal/modules/rules/service"
)

type ServiceNotifier interface {
	SendService(ctx context.Context, format string, args ...any)
}

// Router — живой мост: финализированные 1m-свечи с шины -> индикаторы ->
// вычисление активных правил -> результаты обратно на шину, сработавшие
// сигналы в исходящий канал. Тот же Evaluate, что и в бэктесте.
type Router struct {
	cfg  *config.Config
	bus  *busservice.Bus
	eval *rulesservice.Evaluator
	st   rulesservice.Store
	n    ServiceNotifier
	out  chan<- models.Signal

	ind *rulesservice.IndicatorState

	mu     sync.RWMutex
	active []models.RuleDefinition
	// версия правила на момент последней загрузки — для инвалидации
	versions map[string]int

	busSub   int64
	stop     chan struct{}
	stopOnce sync.Once
}

func NewRouter(cfg *config.Config, b *busservice.Bus, eval *rulesservice.Evaluator, st rulesservice.Store, n ServiceNotifier, out chan<- models.Signal) *Router {
	return &Router{
		cfg:      cfg,
		bus:      b,
		eval:     eval,
		st:       st,
		n:        n,
		out:      out,
		ind:      rulesservice.NewIndicatorState(9, 21, 14),
		versions: make(map[string]int),
		stop:     make(chan struct{}),
	}
}

// Start подписывается на свечи и крутит периодическую перезагрузку правил.
func (r *Router) Start(ctx context.Context) {
	r.RefreshRules(ctx)

	r.busSub = r.bus.Subscribe(models.Topic{Kind: models.KindBarFinal, Timeframe: "1m"}, func(ev models.Event) {
		be, ok := ev.(models.BarFinalEvent)
		if !ok {
			return
		}
		r.OnBar(ctx, be.Bar)
	})

	go func() {
		every := r.cfg.Rules.RefreshEvery
		if every <= 0 {
			every = time.Minute
		}
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-t.C:
				r.RefreshRules(ctx)
			}
		}
	}()
}

// Stop снимает подписку на шину и гасит тикер перезагрузки.
func (r *Router) Stop() {
	r.bus.Unsubscribe(r.busSub)
	r.stopOnce.Do(func() { close(r.stop) })
}

// RefreshRules перечитывает активные правила; сменившаяся версия
// инвалидирует скомпилированный артефакт.
func (r *Router) RefreshRules(ctx context.Context) {
	defs, err := r.st.ListActive(ctx)
	if err != nil {
		logger.Error("runner: load rules: %v", err)
		return
	}

	r.mu.Lock()
	for _, d := range defs {
		if prev, ok := r.versions[d.ID]; ok && prev != d.Version {
			r.eval.Invalidate(d.ID)
		}
		r.versions[d.ID] = d.Version
	}
	r.active = defs
	r.mu.Unlock()

	log.Printf("[RUN] rules loaded: %d", len(defs))
}

// OnBar — один проход правил по одной свече.
func (r *Router) OnBar(ctx context.Context, bar models.Bar) {
	snapshot, ready := r.ind.Update(bar.Symbol, bar.Close)
	if !ready {
		return
	}

	r.mu.RLock()
	defs := r.active
	r.mu.RUnlock()

	for _, def := range defs {
		res := r.eval.EvaluateBar(def, bar, snapshot)

		r.bus.Publish(models.RuleResultEvent{
			Symbol:    bar.Symbol,
			Timeframe: bar.Timeframe,
			Result:    res,
		})

		if !res.Passed || res.Signal == models.DirFlat {
			continue
		}

		sig := models.Signal{
			Symbol:     bar.Symbol,
			Timeframe:  bar.Timeframe,
			RuleID:     def.ID,
			Direction:  res.Signal,
			Price:      bar.Close,
			Confidence: res.Confidence,
			BarSeq:     bar.Seq,
		}
		// раннер не блокируем: переполненный канал — дроп с сервисным нотисом
		select {
		case r.out <- sig:
		default:
			if r.n != nil {
				r.n.SendService(ctx, "⚠️ signal channel full, drop %s %s seq=%d", sig.Symbol, sig.Direction, sig.BarSeq)
			}
		}
	}
}
