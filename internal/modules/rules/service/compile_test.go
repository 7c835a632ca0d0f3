package service

import (
	"testing"

	"trade_core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func def(expr string, params map[string]float64) models.RuleDefinition {
	return models.RuleDefinition{ID: "r1", Version: 1, Expression: expr, Parameters: params}
}

func TestCompileAcceptsAllowedGrammar(t *testing.T) {
	ok := []string{
		"close > 450.5",
		"close > open && volume > 1000",
		"(ema_short > ema_long) || rsi < 30",
		"abs(close - open) / open > 0.01",
		"max(high, close, open) >= threshold",
		"!(close < open)",
		"-close < 0",
		"pow(close, 2) > mean(open, high, low)",
	}
	for _, expr := range ok {
		_, err := Compile(def(expr, map[string]float64{"threshold": 1}))
		assert.NoError(t, err, expr)
	}
}

// Что не разрешено явно — то запрещено, и это ошибка компиляции,
// а не молчаливый пропуск.
func TestCompileRejectsSandboxViolations(t *testing.T) {
	bad := []string{
		"close > portfolio_value", // незнакомый идентификатор
		"exec(1)",                 // незнакомая функция
		"close > 1; open < 2",     // запрещённый токен
		"close = 450",             // одиночное присваивание
		"close & open",            // одиночный амперсанд
		"close > [1]",
		"close >",     // обрыв выражения
		"pow(close)",  // неверная арность
		"max()",       // вариадик без аргументов
		"",            // пустое выражение
		"close > 1 2", // мусор в хвосте
	}
	for _, expr := range bad {
		_, err := Compile(def(expr, nil))
		require.Error(t, err, expr)
		if expr != "" {
			var ce *CompileError
			require.ErrorAs(t, err, &ce, expr)
			assert.Equal(t, "r1", ce.RuleID)
		}
	}
}

func TestCompileAllowsDeclaredParameters(t *testing.T) {
	_, err := Compile(def("close > my_level", nil))
	assert.Error(t, err)

	_, err = Compile(def("close > my_level", map[string]float64{"my_level": 450}))
	assert.NoError(t, err)

	// имена параметров нечувствительны к регистру
	_, err = Compile(def("close > my_level", map[string]float64{"MY_LEVEL": 450}))
	assert.NoError(t, err)
}

func TestCompileErrorCarriesPosition(t *testing.T) {
	_, err := Compile(def("close > bogus_ident", nil))
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 8, ce.Pos)
	assert.Contains(t, ce.Error(), "bogus_ident")
}
