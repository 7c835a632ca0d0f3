package service

import (
	"sync"
	"time"
)

// State — агрегированное состояние процесса для healthz.
type State struct {
	mu          sync.RWMutex
	ready       bool
	wsConnected bool
	lastTick    time.Time
	barsFinal   int64
	ruleResults int64
	startedAt   time.Time
}

func NewState() *State {
	return &State{startedAt: time.Now()}
}

func (s *State) SetReady(v bool) {
	s.mu.Lock()
	s.ready = v
	s.mu.Unlock()
}

func (s *State) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *State) SetWSConnected(v bool) {
	s.mu.Lock()
	s.wsConnected = v
	s.mu.Unlock()
}

func (s *State) WSConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wsConnected
}

func (s *State) MarkTick() {
	s.mu.Lock()
	s.lastTick = time.Now()
	s.mu.Unlock()
}

func (s *State) LastTick() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTick
}

func (s *State) IncBarsFinal() {
	s.mu.Lock()
	s.barsFinal++
	s.mu.Unlock()
}

func (s *State) BarsFinal() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.barsFinal
}

func (s *State) IncRuleResults() {
	s.mu.Lock()
	s.ruleResults++
	s.mu.Unlock()
}

func (s *State) RuleResults() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ruleResults
}

func (s *State) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startedAt)
}
