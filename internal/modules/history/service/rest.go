package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"trade_core/internal/models"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// Provider — внешний REST-источник истории. Не-2xx и пустой ответ
// трактуются резолвером как "данных нет, идём на следующий ярус".
type Provider interface {
	Fetch(ctx context.Context, symbol string, tfMinutes int, fromMs, toMs int64) ([]models.Bar, error)
}

// RESTProvider ходит в апстрим вида GET {base}/v1/history.
type RESTProvider struct {
	http *http.Client
	base string
}

func NewRESTProvider(base string, timeout time.Duration) *RESTProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RESTProvider{
		http: &http.Client{Timeout: timeout},
		base: base,
	}
}

type barPayload struct {
	StartMs int64   `json:"startMs"`
	Open    float64 `json:"open"`
	High    float64 `json:"high"`
	Low     float64 `json:"low"`
	Close   float64 `json:"close"`
	Volume  float64 `json:"volume"`
}

func (p *RESTProvider) Fetch(ctx context.Context, symbol string, tfMinutes int, fromMs, toMs int64) ([]models.Bar, error) {
	if p.base == "" {
		return nil, errors.New("history: no upstream configured")
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("tf", fmt.Sprintf("%dm", tfMinutes))
	q.Set("from", fmt.Sprintf("%d", fromMs))
	q.Set("to", fmt.Sprintf("%d", toMs))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+"/v1/history?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "history: build request")
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "history: upstream request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("history: upstream status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "history: read body")
	}

	var rows []barPayload
	if err := sonic.Unmarshal(body, &rows); err != nil {
		return nil, errors.Wrap(err, "history: decode body")
	}

	tf := fmt.Sprintf("%dm", tfMinutes)
	out := make([]models.Bar, 0, len(rows))
	for _, r := range rows {
		b := models.Bar{
			Symbol:    symbol,
			Timeframe: tf,
			// та же формула, что у живой агрегации: seq сравнимы глобально
			Seq:     models.SeqFor(r.StartMs),
			StartMs: r.StartMs,
			EndMs:   r.StartMs + int64(tfMinutes)*60_000,
			Open:    r.Open,
			High:    r.High,
			Low:     r.Low,
			Close:   r.Close,
			Volume:  r.Volume,
		}
		if !b.Valid() {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}
