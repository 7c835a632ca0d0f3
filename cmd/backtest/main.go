package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"trade_core/internal/helper"
	"trade_core/internal/session"
	"trade_core/pkg/logger"

	btservice "trade_core/internal/modules/backtest/service"
	cacheservice "trade_core/internal/modules/barcache/service"
	histservice "trade_core/internal/modules/history/service"
	rulesservice "trade_core/internal/modules/rules/service"
	filestore "trade_core/internal/modules/rules/service/file"
)

// Офлайновый прогон правил по истории: без fx и без базы,
// правила берём из yaml-файла, свечи — через resolver.
func main() {
	var (
		rulesPath = flag.String("rules", "data/rules.yaml", "yaml-файл с правилами")
		symbol    = flag.String("symbol", "SPY", "тикер")
		tf        = flag.String("tf", "1m", "таймфрейм")
		from      = flag.String("from", "", "начало окна, RFC3339 (по умолчанию -limit свечей от to)")
		to        = flag.String("to", "", "конец окна, RFC3339 (по умолчанию сейчас)")
		limit     = flag.Int("limit", 500, "сколько свечей тянуть")
		baseURL   = flag.String("history-url", os.Getenv("HISTORY_BASE_URL"), "REST-апстрим истории (пусто = синтетика)")
		tz        = flag.String("tz", "America/New_York", "таймзона биржи")
	)
	flag.Parse()

	logger.SetServiceName("trade_core_backtest")
	logger.Init()

	cal, err := session.NewCalendar(*tz)
	if err != nil {
		log.Fatalf("[BT] calendar: %v", err)
	}

	toMs := time.Now().UnixMilli()
	if *to != "" {
		t, err := time.Parse(time.RFC3339, *to)
		if err != nil {
			log.Fatalf("[BT] -to: %v", err)
		}
		toMs = t.UnixMilli()
	}

	tfMin := helper.TFMinutes(*tf)
	if tfMin <= 0 {
		log.Fatalf("[BT] unsupported timeframe %q", *tf)
	}
	fromMs := toMs - int64(*limit)*int64(tfMin)*60_000
	if *from != "" {
		t, err := time.Parse(time.RFC3339, *from)
		if err != nil {
			log.Fatalf("[BT] -from: %v", err)
		}
		fromMs = t.UnixMilli()
	}

	store := filestore.New(*rulesPath)
	defs, err := store.ListActive(context.Background())
	if err != nil {
		log.Fatalf("[BT] rules: %v", err)
	}
	if len(defs) == 0 {
		log.Fatalf("[BT] no active rules in %s", *rulesPath)
	}

	var provider histservice.Provider
	if *baseURL != "" {
		provider = histservice.NewRESTProvider(*baseURL, 10*time.Second)
	}
	resolver := histservice.NewResolver(cacheservice.New(*limit+16), provider, cal, *limit)

	bars := resolver.Resolve(context.Background(), histservice.Request{
		Symbol:    *symbol,
		Timeframe: *tf,
		Limit:     *limit,
		BeforeMs:  toMs,
	})

	engine := btservice.NewEngine(rulesservice.NewEvaluator(), cal)
	rep, err := engine.Run(defs, bars, fromMs, toMs)
	if err != nil {
		log.Fatalf("[BT] run: %v", err)
	}

	fmt.Printf("run %s  %s@%s  bars=%d  window=[%s .. %s]\n",
		rep.RunID, *symbol, helper.NormTF(*tf), rep.BarCount,
		time.UnixMilli(rep.FromMs).In(cal.Location()).Format(time.RFC3339),
		time.UnixMilli(rep.ToMs).In(cal.Location()).Format(time.RFC3339))

	for _, def := range defs {
		m := rep.Metrics[def.ID]
		fmt.Printf("  rule %s v%d: triggers=%d avg_hold=%.2f bars per_day=%.2f\n",
			def.ID, def.Version, m.Triggers, m.AvgHoldBars, m.TriggersPerDay)
	}
	for _, tr := range rep.Triggers {
		fmt.Printf("    %s seq=%d %s dir=%s conf=%.3f\n",
			tr.RuleID, tr.BarSeq,
			time.UnixMilli(tr.StartMs).In(cal.Location()).Format("2006-01-02 15:04"),
			tr.Result.Signal, tr.Result.Confidence)
	}
}
