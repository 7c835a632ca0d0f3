package service

import (
	"testing"

	"trade_core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barClose(seq int64, close float64) models.Bar {
	start := seq * 60_000
	return models.Bar{
		Symbol: "SPY", Timeframe: "1m", Seq: seq,
		StartMs: start, EndMs: start + 60_000,
		Open: close, High: close, Low: close, Close: close, Volume: 1000,
	}
}

func evalOn(t *testing.T, expr string, params map[string]float64, b models.Bar) models.EvaluatedRule {
	t.Helper()
	c, err := Compile(def(expr, params))
	require.NoError(t, err)
	return c.Evaluate(Scope(b, nil, params), b.Seq, b.EndMs)
}

func TestThresholdCrossing(t *testing.T) {
	c, err := Compile(def("close > 450.5", nil))
	require.NoError(t, err)

	closes := []float64{450.2, 450.8, 451.0, 450.7, 450.5}
	wantPass := []bool{false, true, true, true, false}

	for i, cl := range closes {
		b := barClose(int64(i), cl)
		res := c.Evaluate(Scope(b, nil, nil), b.Seq, b.EndMs)
		assert.Equal(t, wantPass[i], res.Passed, "close=%v", cl)
		assert.Equal(t, int64(i), res.BarSeq)
	}
}

func TestConfidenceGrowsWithMargin(t *testing.T) {
	c, err := Compile(def("close > 100", nil))
	require.NoError(t, err)

	near := c.Evaluate(Scope(barClose(0, 100.01), nil, nil), 0, 0)
	far := c.Evaluate(Scope(barClose(0, 150), nil, nil), 0, 0)

	assert.True(t, near.Passed)
	assert.True(t, far.Passed)
	assert.Greater(t, far.Confidence, near.Confidence)
	assert.GreaterOrEqual(t, near.Confidence, 0.0)
	assert.LessOrEqual(t, far.Confidence, 1.0)

	// уверенность считается и для не прошедшего правила
	miss := c.Evaluate(Scope(barClose(0, 50), nil, nil), 0, 0)
	assert.False(t, miss.Passed)
	assert.Greater(t, miss.Confidence, 0.0)
}

func TestConfidenceBinaryWithoutComparison(t *testing.T) {
	// без сравнения нет доминирующего узла: уверенность бинарная
	res := evalOn(t, "volume", nil, barClose(0, 1))
	assert.True(t, res.Passed)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestDirectionFromComparison(t *testing.T) {
	up := evalOn(t, "close > 100", nil, barClose(0, 101))
	assert.Equal(t, models.DirLong, up.Signal)

	down := evalOn(t, "close < 100", nil, barClose(0, 99))
	assert.Equal(t, models.DirShort, down.Signal)

	flat := evalOn(t, "close > 100", nil, barClose(0, 99))
	assert.Equal(t, models.DirFlat, flat.Signal)
}

func TestDirectionFromTextHint(t *testing.T) {
	params := map[string]float64{"long_level": 100}
	res := evalOn(t, "close < long_level", params, barClose(0, 99))
	// лексическая подсказка в тексте перекрывает оператор
	assert.Equal(t, models.DirLong, res.Signal)
}

// Ошибка рантайма деградирует в passed=false — конвейер не падает.
func TestRuntimeErrorDegrades(t *testing.T) {
	// rsi объявлен в базовом скоупе, но индикаторов нет — нет значения
	res := evalOn(t, "rsi < 30", nil, barClose(0, 100))
	assert.False(t, res.Passed)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, models.DirFlat, res.Signal)

	res = evalOn(t, "close / (volume - 1000) > 1", nil, barClose(0, 100))
	assert.False(t, res.Passed)

	// log(0) -> -Inf ловится как нефинитный результат
	res = evalOn(t, "log(close - 100) > 0", nil, barClose(0, 100))
	assert.False(t, res.Passed)
}

func TestParametersOverrideScope(t *testing.T) {
	// объявленный параметр close перекрывает поле свечи
	params := map[string]float64{"close": 500}
	res := evalOn(t, "close > 450", params, barClose(0, 100))
	assert.True(t, res.Passed)
}

func TestScopeLowercasesKeys(t *testing.T) {
	b := barClose(0, 100)
	scope := Scope(b, map[string]float64{"RSI": 25}, map[string]float64{"Level": 30})
	assert.Equal(t, 25.0, scope["rsi"])
	assert.Equal(t, 30.0, scope["level"])
	assert.Equal(t, 100.0, scope["close"])
}

func TestBooleanOperators(t *testing.T) {
	b := barClose(0, 100)

	res := evalOn(t, "close > 50 && volume > 500", nil, b)
	assert.True(t, res.Passed)

	res = evalOn(t, "close > 500 || volume > 500", nil, b)
	assert.True(t, res.Passed)

	res = evalOn(t, "!(close > 50)", nil, b)
	assert.False(t, res.Passed)
}
