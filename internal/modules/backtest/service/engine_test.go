package service

import (
	"testing"

	"trade_core/internal/models"
	"trade_core/internal/session"

	rulesservice "trade_core/internal/modules/rules/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	cal, err := session.NewCalendar("America/New_York")
	require.NoError(t, err)
	return NewEngine(rulesservice.NewEvaluator(), cal)
}

func mkBar(seq int64, close float64) models.Bar {
	start := seq * 60_000
	return models.Bar{
		Symbol: "SPY", Timeframe: "1m", Seq: seq,
		StartMs: start, EndMs: start + 60_000,
		Open: close, High: close, Low: close, Close: close, Volume: 100,
	}
}

func series(closes ...float64) []models.Bar {
	out := make([]models.Bar, 0, len(closes))
	for i, c := range closes {
		out = append(out, mkBar(int64(i), c))
	}
	return out
}

func rule(expr string) models.RuleDefinition {
	return models.RuleDefinition{ID: "r1", Version: 1, Expression: expr}
}

func TestRunTriggersOnThreshold(t *testing.T) {
	e := newEngine(t)
	bars := series(450.2, 450.8, 451.0, 450.7, 450.5)

	rep, err := e.Run([]models.RuleDefinition{rule("close > 450.5")}, bars, 0, 5*60_000)
	require.NoError(t, err)

	assert.Equal(t, 5, rep.BarCount)
	require.Len(t, rep.Triggers, 3)
	assert.Equal(t, int64(1), rep.Triggers[0].BarSeq)
	assert.Equal(t, int64(2), rep.Triggers[1].BarSeq)
	assert.Equal(t, int64(3), rep.Triggers[2].BarSeq)
	assert.Equal(t, 3, rep.Metrics["r1"].Triggers)
	assert.NotEmpty(t, rep.RunID)
}

func TestRunValidatesInput(t *testing.T) {
	e := newEngine(t)
	defs := []models.RuleDefinition{rule("close > 1")}
	bars := series(100, 101)

	var ve *ValidationError

	_, err := e.Run(defs, nil, 0, 60_000)
	require.ErrorAs(t, err, &ve)

	_, err = e.Run(defs, bars, 60_000, 60_000)
	require.ErrorAs(t, err, &ve)

	_, err = e.Run(defs, bars, 60_000, 0)
	require.ErrorAs(t, err, &ve)

	// окно не пересекается с данными
	_, err = e.Run(defs, bars, 100*60_000, 200*60_000)
	require.ErrorAs(t, err, &ve)
}

func TestRunSurfacesCompileError(t *testing.T) {
	e := newEngine(t)

	_, err := e.Run([]models.RuleDefinition{rule("close > bogus")}, series(100), 0, 60_000)
	require.Error(t, err)
	var ce *rulesservice.CompileError
	assert.ErrorAs(t, err, &ce)
}

func TestRunSortsOutOfOrderBars(t *testing.T) {
	e := newEngine(t)
	bars := []models.Bar{mkBar(2, 451.0), mkBar(0, 450.2), mkBar(1, 450.8)}

	rep, err := e.Run([]models.RuleDefinition{rule("close > 450.5")}, bars, 0, 3*60_000)
	require.NoError(t, err)
	require.Len(t, rep.Triggers, 2)
	assert.Equal(t, int64(1), rep.Triggers[0].BarSeq)
	assert.Equal(t, int64(2), rep.Triggers[1].BarSeq)
}

func TestRunFiltersWindow(t *testing.T) {
	e := newEngine(t)
	bars := series(451, 451, 451, 451)

	// [from, to): последняя свеча за границей
	rep, err := e.Run([]models.RuleDefinition{rule("close > 450")}, bars, 60_000, 3*60_000)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.BarCount)
	assert.Len(t, rep.Triggers, 2)
}

// Один вход — побайтово одинаковые триггеры и метрики. RunID — метаданные.
func TestRunIsDeterministic(t *testing.T) {
	e := newEngine(t)
	defs := []models.RuleDefinition{
		rule("close > 100.5"),
		{ID: "r2", Version: 1, Expression: "rsi < 45 && close < level", Parameters: map[string]float64{"level": 101}},
	}
	closes := make([]float64, 0, 120)
	for i := 0; i < 120; i++ {
		closes = append(closes, 100+float64(i%7)*0.3)
	}
	bars := series(closes...)

	rep1, err := e.Run(defs, bars, 0, 120*60_000)
	require.NoError(t, err)
	rep2, err := e.Run(defs, bars, 0, 120*60_000)
	require.NoError(t, err)

	assert.NotEqual(t, rep1.RunID, rep2.RunID)
	assert.Equal(t, rep1.Triggers, rep2.Triggers)
	assert.Equal(t, rep1.Metrics, rep2.Metrics)
}

func TestMetricsHoldAndRate(t *testing.T) {
	e := newEngine(t)
	// срабатывания на seq 1, 3, 5: средний шаг 2
	bars := series(100, 200, 100, 200, 100, 200)

	rep, err := e.Run([]models.RuleDefinition{rule("close > 150")}, bars, 0, 24*60*60_000)
	require.NoError(t, err)

	m := rep.Metrics["r1"]
	assert.Equal(t, 3, m.Triggers)
	assert.Equal(t, 2.0, m.AvgHoldBars)
	assert.Equal(t, 3.0, m.TriggersPerDay) // окно ровно сутки
}

// Hold считается в свечах, не в минутных seq: у 5m-реплея шаг
// соседних свечей по seq равен 5.
func TestMetricsHoldOnHigherTimeframe(t *testing.T) {
	e := newEngine(t)

	bars := make([]models.Bar, 0, 4)
	for i := int64(0); i < 4; i++ {
		start := i * 5 * 60_000
		bars = append(bars, models.Bar{
			Symbol: "SPY", Timeframe: "5m", Seq: models.SeqFor(start),
			StartMs: start, EndMs: start + 5*60_000,
			Open: 200, High: 200, Low: 200, Close: 200, Volume: 100,
		})
	}

	rep, err := e.Run([]models.RuleDefinition{rule("close > 150")}, bars, 0, 20*60_000)
	require.NoError(t, err)

	m := rep.Metrics["r1"]
	assert.Equal(t, 4, m.Triggers)
	assert.Equal(t, 1.0, m.AvgHoldBars) // соседние свечи = hold в одну свечу
}

func TestMetricsByHourUsesExchangeClock(t *testing.T) {
	e := newEngine(t)
	// 2024-06-03 10:00 NY
	start := int64(1_717_423_200_000)
	b := mkBar(models.SeqFor(start), 200)
	b.StartMs = start
	b.EndMs = start + 60_000

	rep, err := e.Run([]models.RuleDefinition{rule("close > 150")}, []models.Bar{b}, start, start+60_000)
	require.NoError(t, err)

	m := rep.Metrics["r1"]
	assert.Equal(t, 1, m.Triggers)
	assert.Equal(t, 1, m.ByHour[10])
}
