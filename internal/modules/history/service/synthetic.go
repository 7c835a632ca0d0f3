package service

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"trade_core/internal/helper"
	"trade_core/internal/models"
)

// SynthesizeBars — правдоподобное случайное блуждание для офлайн/демо-режима,
// когда ни кеш, ни апстрим ничего не дали. Сид детерминирован от
// (symbol, конец окна): одинаковый запрос даёт одинаковую серию.
// Свечи помечены Synthetic и никогда не считаются авторитетными.
func SynthesizeBars(symbol, tf string, n int, toMs int64, loc *time.Location) []models.Bar {
	tfMin := helper.TFMinutes(tf)
	if tfMin <= 0 {
		tfMin = 1
	}
	if n <= 0 {
		return nil
	}

	lastStart := helper.FloorBucketMs(toMs, tfMin, loc)

	h := fnv.New64a()
	_, _ = h.Write([]byte(fmt.Sprintf("%s@%s:%d", symbol, tf, lastStart)))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	// базовая цена тоже от символа, чтобы AAPL не стоил как пенни-сток
	base := 20 + float64(h.Sum64()%4000)/10

	out := make([]models.Bar, 0, n)
	price := base
	step := time.Duration(tfMin) * time.Minute
	start := time.UnixMilli(lastStart).In(loc).Add(-step * time.Duration(n-1))

	for i := 0; i < n; i++ {
		open := price
		drift := (rng.Float64() - 0.5) * base * 0.004
		cl := open + drift
		hi := open + rng.Float64()*base*0.002
		lo := open - rng.Float64()*base*0.002
		if cl > hi {
			hi = cl
		}
		if cl < lo {
			lo = cl
		}
		startMs := start.Add(step * time.Duration(i)).UnixMilli()
		out = append(out, models.Bar{
			Symbol:    symbol,
			Timeframe: helper.NormTF(tf),
			Seq:       models.SeqFor(startMs),
			StartMs:   startMs,
			EndMs:     helper.BucketEndMs(startMs, tfMin, loc),
			Open:      open,
			High:      hi,
			Low:       lo,
			Close:     cl,
			Volume:    float64(1000 + rng.Intn(9000)),
			Synthetic: true,
		})
		price = cl
	}
	return out
}
