package helper

import (
	"strings"
	"time"
)

// NormTF приводит таймфрейм к канонической форме: "60m" -> "1h", "candle1m" -> "1m".
func NormTF(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "candle")
	switch s {
	case "60m", "1h":
		return "1h"
	default:
		return s
	}
}

// TFMinutes — длина таймфрейма в минутах. 0 — если распарсить не удалось.
func TFMinutes(tf string) int {
	switch NormTF(tf) {
	case "1m":
		return 1
	case "3m":
		return 3
	case "5m":
		return 5
	case "10m":
		return 10
	case "15m":
		return 15
	case "30m":
		return 30
	case "1h":
		return 60
	default:
		return 0
	}
}

// FloorBucketMs — начало бакета для метки времени: округление вниз до
// гранулярности таймфрейма в локальном календаре биржи, не в UTC.
// Считаем в абсолютном времени со смещением самой метки, без обратной
// сборки через time.Date: на осеннем переводе часов повторённый
// wall-clock остаётся во втором проходе, и начала бакетов монотонны.
func FloorBucketMs(tsMs int64, tfMin int, loc *time.Location) int64 {
	if tfMin <= 0 {
		tfMin = 1
	}
	_, off := time.UnixMilli(tsMs).In(loc).Zone()
	local := tsMs + int64(off)*1000
	step := int64(tfMin) * 60_000
	rem := local % step
	if rem < 0 {
		rem += step
	}
	return local - rem - int64(off)*1000
}

// BucketEndMs — конец бакета, начавшегося в startMs.
func BucketEndMs(startMs int64, tfMin int, loc *time.Location) int64 {
	if tfMin <= 0 {
		tfMin = 1
	}
	start := time.UnixMilli(startMs).In(loc)
	return start.Add(time.Duration(tfMin) * time.Minute).UnixMilli()
}

// CacheKey — единый ключ symbol@timeframe для пер-символьных структур.
func CacheKey(symbol, tf string) string { return symbol + "@" + NormTF(tf) }
