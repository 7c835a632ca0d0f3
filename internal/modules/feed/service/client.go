package service

import (
	"context"
	"log"
	"time"

	"trade_core/internal/models"
	"trade_core/internal/modules/config"

	busservice "trade_core/internal/modules/bus/service"
	healthservice "trade_core/internal/modules/health/service"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

type ServiceNotifier interface {
	SendService(ctx context.Context, format string, args ...any)
}

// Client — WebSocket-клиент фида маркет-даты. Ядру всё равно, кто на
// том конце: вендор, симулятор или переигранная история — тики просто
// попадают на шину.
type Client struct {
	cfg      *config.Config
	bus      *busservice.Bus
	state    *healthservice.State
	n        ServiceNotifier
	wsDialer *websocket.Dialer
}

func NewClient(cfg *config.Config, b *busservice.Bus, state *healthservice.State, n ServiceNotifier) *Client {
	return &Client{
		cfg:      cfg,
		bus:      b,
		state:    state,
		n:        n,
		wsDialer: &websocket.Dialer{},
	}
}

// кадр вендора: трейды либо официальные минутные агрегаты
type frame struct {
	Channel string `json:"channel"`
	Symbol  string `json:"symbol"`
	Data    []struct {
		Ts    int64   `json:"ts"`
		Price float64 `json:"price"`
		Size  float64 `json:"size"`
		Side  string  `json:"side"`

		Seq    int64   `json:"seq"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume float64 `json:"volume"`
	} `json:"data"`
}

// Start держит соединение с переподключением. Блокирует — зови в горутине.
func (c *Client) Start(ctx context.Context) {
	if len(c.cfg.Feed.Symbols) == 0 {
		log.Println("[FEED] пустой watchlist — стример не запущен")
		return
	}
	if c.n != nil {
		c.n.SendService(ctx, "🚀 фид запущен: %d инструментов", len(c.cfg.Feed.Symbols))
	}

	args := make([]map[string]string, 0, len(c.cfg.Feed.Symbols)*2)
	for _, sym := range c.cfg.Feed.Symbols {
		args = append(args,
			map[string]string{"channel": "trades", "symbol": sym},
			map[string]string{"channel": "agg1m", "symbol": sym},
		)
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		log.Printf("[FEED] connect %s, %d symbols", c.cfg.Feed.URL, len(c.cfg.Feed.Symbols))
		conn, _, err := c.wsDialer.Dial(c.cfg.Feed.URL, nil)
		if err != nil {
			log.Printf("[FEED] dial error: %v", err)
			time.Sleep(time.Second)
			continue
		}
		c.state.SetWSConnected(true)

		sub := map[string]any{
			"op":   "subscribe",
			"args": args,
		}
		if err := conn.WriteJSON(sub); err != nil {
			log.Printf("[FEED] subscribe error: %v", err)
			_ = conn.Close()
			c.state.SetWSConnected(false)
			continue
		}

		// keepalive ping каждые 20s — иначе вендор рвёт соединение
		stopPing := make(chan struct{})
		go func() {
			t := time.NewTicker(20 * time.Second)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-stopPing:
					return
				case <-t.C:
					_ = conn.WriteJSON(map[string]string{"op": "ping"})
				}
			}
		}()

		c.readLoop(ctx, conn)
		close(stopPing)
		c.state.SetWSConnected(false)

		select {
		case <-ctx.Done():
			return
		default:
			time.Sleep(time.Second)
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[FEED] read error: %v", err)
			return
		}

		var f frame
		if err := sonic.Unmarshal(msg, &f); err != nil {
			continue
		}
		if f.Symbol == "" || len(f.Data) == 0 {
			continue
		}

		switch f.Channel {
		case "trades":
			for _, row := range f.Data {
				if row.Price <= 0 {
					continue
				}
				c.state.MarkTick()
				c.bus.Publish(models.TickEvent{Tick: models.Tick{
					Symbol:      f.Symbol,
					TimestampMs: row.Ts,
					Price:       row.Price,
					Size:        row.Size,
					Side:        models.Side(row.Side),
				}})
			}
		case "agg1m":
			for _, row := range f.Data {
				c.bus.Publish(models.AggregateEvent{Aggregate: models.Aggregate{
					Symbol: f.Symbol,
					Seq:    row.Seq,
					Open:   row.Open,
					High:   row.High,
					Low:    row.Low,
					Close:  row.Close,
					Volume: row.Volume,
				}})
			}
		}
	}
}
