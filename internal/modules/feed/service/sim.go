package service

import (
	"context"
	"hash/fnv"
	"log"
	"math/rand"
	"time"

	"trade_core/internal/models"
	"trade_core/internal/modules/config"

	busservice "trade_core/internal/modules/bus/service"
	healthservice "trade_core/internal/modules/health/service"
)

// Simulator — демо-источник тиков: случайное блуждание на шину,
// когда живого фида нет. Тот же контракт, что у Client.
type Simulator struct {
	cfg   *config.Config
	bus   *busservice.Bus
	state *healthservice.State
}

func NewSimulator(cfg *config.Config, b *busservice.Bus, state *healthservice.State) *Simulator {
	return &Simulator{cfg: cfg, bus: b, state: state}
}

// Start блокирует — зови в горутине.
func (s *Simulator) Start(ctx context.Context) {
	log.Printf("[FEED] simulator: %d symbols", len(s.cfg.Feed.Symbols))
	s.state.SetWSConnected(true)
	defer s.state.SetWSConnected(false)

	prices := make(map[string]float64, len(s.cfg.Feed.Symbols))
	for _, sym := range s.cfg.Feed.Symbols {
		h := fnv.New64a()
		_, _ = h.Write([]byte(sym))
		prices[sym] = 20 + float64(h.Sum64()%4000)/10
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	t := time.NewTicker(250 * time.Millisecond)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			for sym, px := range prices {
				px += (rng.Float64() - 0.5) * px * 0.0005
				prices[sym] = px
				s.state.MarkTick()
				s.bus.Publish(models.TickEvent{Tick: models.Tick{
					Symbol:      sym,
					TimestampMs: now.UnixMilli(),
					Price:       px,
					Size:        float64(1 + rng.Intn(50)),
				}})
			}
		}
	}
}
