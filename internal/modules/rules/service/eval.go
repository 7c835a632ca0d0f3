package service

import (
	"math"
	"strings"

	"trade_core/internal/models"
	"trade_core/pkg/logger"

	"github.com/pkg/errors"
)

func (n *numNode) eval(_ map[string]float64) (float64, error) { return n.v, nil }

func (n *identNode) eval(scope map[string]float64) (float64, error) {
	v, ok := scope[n.name]
	if !ok {
		// индикатор ещё не прогрет или параметр не передан
		return 0, errors.Errorf("identifier %q has no value", n.name)
	}
	return v, nil
}

func (n *unaryNode) eval(scope map[string]float64) (float64, error) {
	v, err := n.x.eval(scope)
	if err != nil {
		return 0, err
	}
	switch n.op {
	case "-":
		return -v, nil
	case "!":
		if truthy(v) {
			return 0, nil
		}
		return 1, nil
	}
	return 0, errors.Errorf("unknown unary %q", n.op)
}

func truthy(v float64) bool { return v != 0 && !math.IsNaN(v) }

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (n *binaryNode) eval(scope map[string]float64) (float64, error) {
	l, err := n.l.eval(scope)
	if err != nil {
		return 0, err
	}

	// && и || короткого замыкания не требуют: выражение чистое,
	// но правый операнд всё равно не считаем зря
	switch n.op {
	case "&&":
		if !truthy(l) {
			return 0, nil
		}
		r, err := n.r.eval(scope)
		if err != nil {
			return 0, err
		}
		return b2f(truthy(r)), nil
	case "||":
		if truthy(l) {
			return 1, nil
		}
		r, err := n.r.eval(scope)
		if err != nil {
			return 0, err
		}
		return b2f(truthy(r)), nil
	}

	r, err := n.r.eval(scope)
	if err != nil {
		return 0, err
	}

	switch n.op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return 0, errors.New("division by zero")
		}
		return l / r, nil
	case "<":
		return b2f(l < r), nil
	case ">":
		return b2f(l > r), nil
	case "<=":
		return b2f(l <= r), nil
	case ">=":
		return b2f(l >= r), nil
	case "==":
		return b2f(l == r), nil
	case "!=":
		return b2f(l != r), nil
	}
	return 0, errors.Errorf("unknown operator %q", n.op)
}

func (n *callNode) eval(scope map[string]float64) (float64, error) {
	args := make([]float64, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(scope)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}

	var v float64
	switch n.name {
	case "abs":
		v = math.Abs(args[0])
	case "sqrt":
		v = math.Sqrt(args[0])
	case "log":
		v = math.Log(args[0])
	case "exp":
		v = math.Exp(args[0])
	case "pow":
		v = math.Pow(args[0], args[1])
	case "max":
		v = args[0]
		for _, a := range args[1:] {
			v = math.Max(v, a)
		}
	case "min":
		v = args[0]
		for _, a := range args[1:] {
			v = math.Min(v, a)
		}
	case "mean":
		sum := 0.0
		for _, a := range args {
			sum += a
		}
		v = sum / float64(len(args))
	default:
		return 0, errors.Errorf("unknown function %q", n.name)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.Errorf("%s produced non-finite value", n.name)
	}
	return v, nil
}

// confidence — эвристика уверенности по доминирующему сравнению:
// чем ближе операнды, тем ниже. Сигмоидное насыщение держит значение
// строго в [0,1].
func (c *Compiled) confidence(scope map[string]float64, passed bool) float64 {
	if c.domCmp == nil {
		// без сравнения уверенность бинарная
		return b2f(passed)
	}
	l, errL := c.domCmp.l.eval(scope)
	r, errR := c.domCmp.r.eval(scope)
	if errL != nil || errR != nil {
		return 0
	}
	base := math.Max(math.Abs(l), math.Abs(r))
	if base < 1e-9 {
		base = 1e-9
	}
	d := math.Abs(l-r) / base
	return 2/(1+math.Exp(-60*d)) - 1
}

// direction — известная аппроксимация, не точный вывод: лексические
// подсказки в тексте выражения плюс направление доминирующего сравнения.
// Для составных выражений может ошибаться (задокументированное поведение).
func (c *Compiled) direction(passed bool) models.Direction {
	if !passed {
		return models.DirFlat
	}
	switch {
	case c.hintLong && !c.hintShort:
		return models.DirLong
	case c.hintShort && !c.hintLong:
		return models.DirShort
	}
	if c.domCmp != nil {
		switch c.domCmp.op {
		case ">", ">=":
			return models.DirLong
		case "<", "<=":
			return models.DirShort
		}
	}
	return models.DirFlat
}

// Evaluate выполняет скомпилированное выражение на скоупе свечи.
// Любая ошибка рантайма деградирует в passed=false/confidence=0 —
// падение одного правила не останавливает конвейер.
func (c *Compiled) Evaluate(scope map[string]float64, barSeq, tsMs int64) models.EvaluatedRule {
	out := models.EvaluatedRule{
		RuleID:      c.Rule.ID,
		Version:     c.Rule.Version,
		Signal:      models.DirFlat,
		BarSeq:      barSeq,
		TimestampMs: tsMs,
	}

	v, err := c.root.eval(scope)
	if err != nil {
		logger.Warn("rules: eval %s v%d seq=%d: %v", c.Rule.ID, c.Rule.Version, barSeq, err)
		return out
	}

	out.Passed = truthy(v)
	out.Confidence = c.confidence(scope, out.Passed)
	out.Signal = c.direction(out.Passed)
	return out
}

// Scope собирает окружение вычисления: OHLCV свечи, индикаторы,
// затем объявленные параметры правила (параметры перекрывают всё).
func Scope(bar models.Bar, indicators map[string]float64, params map[string]float64) map[string]float64 {
	scope := map[string]float64{
		"open":   bar.Open,
		"high":   bar.High,
		"low":    bar.Low,
		"close":  bar.Close,
		"volume": bar.Volume,
	}
	for k, v := range indicators {
		scope[strings.ToLower(k)] = v
	}
	for k, v := range params {
		scope[strings.ToLower(k)] = v
	}
	return scope
}
