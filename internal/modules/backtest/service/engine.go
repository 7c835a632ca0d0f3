package service

import (
	"fmt"
	"sort"
	"time"

	"trade_core/internal/helper"
	"trade_core/internal/models"
	"trade_core/internal/session"

	rulesservice "trade_core/internal/modules/rules/service"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
)

// ValidationError — пользовательская ошибка валидации запуска:
// нет данных, вырожденное окно. Поднимается до начала реплея.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "backtest: " + e.Reason }

// Trigger — срабатывание правила на свече реплея.
type Trigger struct {
	RuleID  string
	BarSeq  int64
	StartMs int64
	Result  models.EvaluatedRule
}

// Metrics — пост-фактум метрики по одному правилу.
type Metrics struct {
	Triggers       int
	AvgHoldBars    float64
	TriggersPerDay float64
	ByHour         [24]int
}

// Report — результат прогона. RunID — метаданные, в контракт
// детерминизма не входит.
type Report struct {
	RunID    string
	FromMs   int64
	ToMs     int64
	BarCount int
	Triggers []Trigger
	Metrics  map[string]Metrics
}

// Engine гоняет исторические свечи через тот же Evaluate, что и живой
// раннер. Внутри цикла нет ни часов, ни рандома, ни I/O: одинаковый
// вход даёт побайтово одинаковые триггеры и метрики.
type Engine struct {
	eval *rulesservice.Evaluator
	cal  *session.Calendar

	emaShortN int
	emaLongN  int
	rsiN      int
}

func NewEngine(eval *rulesservice.Evaluator, cal *session.Calendar) *Engine {
	return &Engine{
		eval:      eval,
		cal:       cal,
		emaShortN: 9,
		emaLongN:  21,
		rsiN:      14,
	}
}

// Run — валидация, реплей в хронологическом порядке, метрики.
func (e *Engine) Run(rules []models.RuleDefinition, bars []models.Bar, fromMs, toMs int64) (*Report, error) {
	span := opentracing.StartSpan("backtest.run")
	defer span.Finish()

	if len(bars) == 0 {
		return nil, &ValidationError{Reason: "no bars supplied: load history for the symbol first"}
	}
	if toMs <= fromMs {
		return nil, &ValidationError{Reason: fmt.Sprintf("time range is not positive: from=%d to=%d", fromMs, toMs)}
	}

	// компиляция заранее: ошибка песочницы — ошибка запуска, не реплея
	compiled := make([]*rulesservice.Compiled, 0, len(rules))
	for _, def := range rules {
		c, err := e.eval.Compile(def)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, c)
	}

	sorted := make([]models.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartMs < sorted[j].StartMs })

	window := sorted[:0:0]
	for _, b := range sorted {
		if b.StartMs >= fromMs && b.StartMs < toMs {
			window = append(window, b)
		}
	}
	if len(window) == 0 {
		return nil, &ValidationError{Reason: "no bars inside the requested window: widen the range"}
	}

	ind := rulesservice.NewIndicatorState(e.emaShortN, e.emaLongN, e.rsiN)

	rep := &Report{
		RunID:    uuid.NewString(),
		FromMs:   fromMs,
		ToMs:     toMs,
		BarCount: len(window),
		Metrics:  make(map[string]Metrics, len(rules)),
	}

	for _, bar := range window {
		snapshot, _ := ind.Update(bar.Symbol, bar.Close)
		for i, c := range compiled {
			res := c.Evaluate(rulesservice.Scope(bar, snapshot, rules[i].Parameters), bar.Seq, bar.EndMs)
			if res.Passed {
				rep.Triggers = append(rep.Triggers, Trigger{
					RuleID:  c.Rule.ID,
					BarSeq:  bar.Seq,
					StartMs: bar.StartMs,
					Result:  res,
				})
			}
		}
	}

	e.computeMetrics(rep, rules, helper.TFMinutes(window[0].Timeframe))
	span.SetTag("bars", rep.BarCount)
	span.SetTag("triggers", len(rep.Triggers))
	return rep, nil
}

func (e *Engine) computeMetrics(rep *Report, rules []models.RuleDefinition, tfMin int) {
	days := float64(rep.ToMs-rep.FromMs) / float64(24*time.Hour/time.Millisecond)
	// seq минутный для всех таймфреймов: шаг соседних 5m-свечей — 5
	if tfMin <= 0 {
		tfMin = 1
	}

	for _, def := range rules {
		m := Metrics{}
		var prevSeq int64
		var holdSum float64
		for _, tr := range rep.Triggers {
			if tr.RuleID != def.ID {
				continue
			}
			if m.Triggers > 0 {
				holdSum += float64(tr.BarSeq-prevSeq) / float64(tfMin)
			}
			prevSeq = tr.BarSeq
			m.Triggers++

			hour := time.UnixMilli(tr.StartMs).In(e.cal.Location()).Hour()
			m.ByHour[hour]++
		}
		if m.Triggers > 1 {
			m.AvgHoldBars = holdSum / float64(m.Triggers-1)
		}
		if days > 0 {
			m.TriggersPerDay = float64(m.Triggers) / days
		}
		rep.Metrics[def.ID] = m
	}
}
