package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndicatorWarmup(t *testing.T) {
	s := NewIndicatorState(9, 21, 14)

	var ready bool
	for i := 0; i < 20; i++ {
		_, ready = s.Update("SPY", 100+float64(i))
		assert.False(t, ready, "sample %d", i)
	}
	_, ready = s.Update("SPY", 120)
	assert.True(t, ready) // 21 точка = max(emaLongN, rsiN+1)
}

func TestEMASeededWithFirstPrice(t *testing.T) {
	s := NewIndicatorState(9, 21, 14)
	snap, _ := s.Update("SPY", 100)
	assert.Equal(t, 100.0, snap["ema_short"])
	assert.Equal(t, 100.0, snap["ema_long"])
	assert.Equal(t, 50.0, snap["rsi"]) // нейтральный RSI до первой дельты
}

func TestEMAConvergesTowardPrice(t *testing.T) {
	s := NewIndicatorState(9, 21, 14)
	s.Update("SPY", 100)
	var snap map[string]float64
	for i := 0; i < 100; i++ {
		snap, _ = s.Update("SPY", 200)
	}
	assert.InDelta(t, 200, snap["ema_short"], 1)
	// короткая EMA догоняет быстрее длинной
	assert.Greater(t, snap["ema_short"], snap["ema_long"])
}

func TestRSIDirection(t *testing.T) {
	up := NewIndicatorState(9, 21, 14)
	var snapUp map[string]float64
	for i := 0; i < 30; i++ {
		snapUp, _ = up.Update("SPY", 100+float64(i))
	}
	// монотонный рост без потерь -> RSI у верхней границы
	assert.Greater(t, snapUp["rsi"], 90.0)

	down := NewIndicatorState(9, 21, 14)
	var snapDown map[string]float64
	for i := 0; i < 30; i++ {
		snapDown, _ = down.Update("SPY", 100-float64(i))
	}
	assert.Less(t, snapDown["rsi"], 10.0)
}

func TestSymbolsAreIndependent(t *testing.T) {
	s := NewIndicatorState(9, 21, 14)
	s.Update("SPY", 100)
	snap, _ := s.Update("TSLA", 500)
	assert.Equal(t, 500.0, snap["ema_short"]) // сид TSLA не задет SPY
}

// Два состояния, скормленные одинаковым потоком, идентичны:
// общий код индикаторов и даёт общий детерминизм живого пути и реплея.
func TestIndicatorDeterminism(t *testing.T) {
	a := NewIndicatorState(9, 21, 14)
	b := NewIndicatorState(9, 21, 14)

	prices := []float64{100, 101.5, 99.2, 103, 98.7, 104.4, 102.2}
	var snapA, snapB map[string]float64
	for _, p := range prices {
		snapA, _ = a.Update("SPY", p)
		snapB, _ = b.Update("SPY", p)
	}
	assert.Equal(t, snapA, snapB)
}

func TestReset(t *testing.T) {
	s := NewIndicatorState(9, 21, 14)
	for i := 0; i < 25; i++ {
		s.Update("SPY", 100+float64(i))
	}
	s.Reset()
	snap, ready := s.Update("SPY", 100)
	assert.False(t, ready)
	assert.Equal(t, 100.0, snap["ema_short"])
}
