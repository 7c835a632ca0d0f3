package models

import "math"

// Bar — финализированная OHLCV-свеча фиксированного окна.
// После эмиссии неизменяема: коррекция моделируется как новое значение,
// заменяющее запись в кеше по тому же Seq, а не как мутация.
type Bar struct {
	Symbol    string
	Timeframe string // "1m","5m","15m",...
	Seq       int64
	StartMs   int64
	EndMs     int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64

	// Synthetic — сгенерированная заглушка для офлайн/демо-режима.
	// Никогда не участвует в реконсиляции.
	Synthetic bool
	// Reconciled — значение заменено авторитетным агрегатом вендора.
	Reconciled bool
}

// SeqFor — единая нумерация минутных бакетов для всех источников
// (живая агрегация, REST-история, синтетика). Формула авторитетна:
// floor(startMs / 60_000).
func SeqFor(startMs int64) int64 {
	if startMs < 0 {
		// floor, а не усечение к нулю
		return (startMs - 59_999) / 60_000
	}
	return startMs / 60_000
}

// Valid — все OHLCV-поля конечны. Свеча с NaN/Inf не эмитится и не кешируется.
func (b Bar) Valid() bool {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Microbar — транзиентный снимок свечи-в-работе, эмитится по таймеру
// для плавности UI. Не авторитетен: не кешируется и не реконсилируется.
type Microbar struct {
	Symbol    string
	Timeframe string
	Seq       int64
	StartMs   int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	AtMs      int64
}

// Aggregate — официальный минутный агрегат от вендора.
// Приходит позже тикового потока и заменяет тиковую свечу с тем же Seq.
type Aggregate struct {
	Symbol string
	Seq    int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Valid — как у Bar.
func (a Aggregate) Valid() bool {
	for _, v := range []float64{a.Open, a.High, a.Low, a.Close, a.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
