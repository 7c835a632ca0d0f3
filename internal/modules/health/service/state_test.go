package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateCounters(t *testing.T) {
	s := NewState()

	assert.False(t, s.Ready())
	assert.False(t, s.WSConnected())
	assert.True(t, s.LastTick().IsZero())

	s.SetReady(true)
	s.SetWSConnected(true)
	s.MarkTick()
	s.IncBarsFinal()
	s.IncBarsFinal()
	s.IncRuleResults()

	assert.True(t, s.Ready())
	assert.True(t, s.WSConnected())
	assert.False(t, s.LastTick().IsZero())
	assert.Equal(t, int64(2), s.BarsFinal())
	assert.Equal(t, int64(1), s.RuleResults())
	assert.GreaterOrEqual(t, s.Uptime().Nanoseconds(), int64(0))
}
