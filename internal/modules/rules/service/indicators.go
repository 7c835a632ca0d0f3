package service

import "sync"

// IndicatorState — потоковые EMA short/long и RSI Уайлдера per symbol.
// Одинаковый код питает и живой раннер, и бэктест: детерминизм общий.
type IndicatorState struct {
	mu sync.Mutex

	emaShortN int
	emaLongN  int
	rsiN      int

	emaShort map[string]float64
	emaLong  map[string]float64
	rsi      map[string]*rsiState
	samples  map[string]int
}

type rsiState struct {
	prev        float64
	avgGain     float64
	avgLoss     float64
	initialized bool
}

func NewIndicatorState(emaShortN, emaLongN, rsiN int) *IndicatorState {
	if emaShortN <= 0 {
		emaShortN = 9
	}
	if emaLongN <= 0 {
		emaLongN = 21
	}
	if rsiN <= 0 {
		rsiN = 14
	}
	return &IndicatorState{
		emaShortN: emaShortN,
		emaLongN:  emaLongN,
		rsiN:      rsiN,
		emaShort:  map[string]float64{},
		emaLong:   map[string]float64{},
		rsi:       map[string]*rsiState{},
		samples:   map[string]int{},
	}
}

// Update сворачивает очередной close и возвращает снимок индикаторов.
// ready=false пока прогрев не накопил достаточно точек — тогда
// вычисление правила с индикаторами штатно деградирует.
func (s *IndicatorState) Update(symbol string, price float64) (map[string]float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kShort := 2.0 / float64(s.emaShortN+1)
	kLong := 2.0 / float64(s.emaLongN+1)
	if s.samples[symbol] == 0 {
		s.emaShort[symbol] = price
		s.emaLong[symbol] = price
	} else {
		s.emaShort[symbol] += kShort * (price - s.emaShort[symbol])
		s.emaLong[symbol] += kLong * (price - s.emaLong[symbol])
	}

	st := s.rsi[symbol]
	if st == nil {
		st = &rsiState{}
		s.rsi[symbol] = st
	}
	rsi := 50.0
	if st.initialized {
		change := price - st.prev
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		alpha := 1.0 / float64(s.rsiN)
		if st.avgGain == 0 && st.avgLoss == 0 {
			st.avgGain, st.avgLoss = gain, loss
		} else {
			st.avgGain = (1-alpha)*st.avgGain + alpha*gain
			st.avgLoss = (1-alpha)*st.avgLoss + alpha*loss
		}
		switch {
		case st.avgLoss == 0 && st.avgGain == 0:
			rsi = 50
		case st.avgLoss == 0:
			// потерь не было вовсе: rs уходит в бесконечность
			rsi = 100
		default:
			rs := st.avgGain / st.avgLoss
			rsi = 100 - (100 / (1 + rs))
		}
	}
	st.prev = price
	st.initialized = true

	s.samples[symbol]++
	warmup := s.emaLongN
	if s.rsiN+1 > warmup {
		warmup = s.rsiN + 1
	}
	ready := s.samples[symbol] >= warmup

	return map[string]float64{
		"ema_short": s.emaShort[symbol],
		"ema_long":  s.emaLong[symbol],
		"rsi":       rsi,
	}, ready
}

// Reset сбрасывает прогрев (нужно бэктесту между запусками).
func (s *IndicatorState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emaShort = map[string]float64{}
	s.emaLong = map[string]float64{}
	s.rsi = map[string]*rsiState{}
	s.samples = map[string]int{}
}
