package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeqFor(t *testing.T) {
	assert.Equal(t, int64(0), SeqFor(0))
	assert.Equal(t, int64(0), SeqFor(59_999))
	assert.Equal(t, int64(1), SeqFor(60_000))
	assert.Equal(t, int64(1), SeqFor(61_000))
	assert.Equal(t, int64(28_868_460), SeqFor(1_732_107_600_000))
}

func TestSeqForNegativeFloors(t *testing.T) {
	// floor, не усечение: -1ms принадлежит бакету -1
	assert.Equal(t, int64(-1), SeqFor(-1))
	assert.Equal(t, int64(-1), SeqFor(-60_000))
	assert.Equal(t, int64(-2), SeqFor(-60_001))
}

func TestBarValid(t *testing.T) {
	b := Bar{Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100}
	assert.True(t, b.Valid())

	b.High = math.NaN()
	assert.False(t, b.Valid())

	b.High = math.Inf(1)
	assert.False(t, b.Valid())

	b.High = 2
	b.Volume = math.Inf(-1)
	assert.False(t, b.Valid())
}

func TestAggregateValid(t *testing.T) {
	a := Aggregate{Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 1}
	assert.True(t, a.Valid())
	a.Close = math.NaN()
	assert.False(t, a.Valid())
}
