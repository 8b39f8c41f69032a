package main

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/mirrorstack/papersim/config"
	"github.com/mirrorstack/papersim/internal/adapters/notify"
	"github.com/mirrorstack/papersim/internal/adapters/polymarket"
	"github.com/mirrorstack/papersim/internal/application/engine"
	"github.com/mirrorstack/papersim/internal/domain"
)

func backtestConfig(cfg *config.Config) engine.BacktestConfig {
	return engine.BacktestConfig{
		Days:           cfg.Simulation.Days,
		InitialCapital: cfg.Simulation.InitialCapital,
		SlippagePct:    cfg.Simulation.SlippagePct,
		CooldownHours:  cfg.Simulation.CooldownHours,
		PerTradeCapPct: cfg.Simulation.PerTradeCapPct,
		Category:       cfg.Simulation.Category,
		End:            time.Now().UTC(),
	}
}

func runBacktest(ctx context.Context, cfg *config.Config, client *polymarket.Client, console *notify.Console) {
	runCfg := backtestConfig(cfg)
	runner, err := engine.NewRunner(runCfg)
	if err != nil {
		slog.Error("invalid backtest config", "err", err)
		os.Exit(1)
	}

	start, end := runCfg.Window()
	slog.Info("backtest starting",
		"start", start.Format(time.RFC3339),
		"end", end.Format(time.RFC3339),
		"capital", runCfg.InitialCapital,
	)

	events, err := client.FetchEvents(ctx, start, end)
	if err != nil {
		slog.Error("failed to fetch trade events", "err", err)
		os.Exit(1)
	}
	slog.Info("trade events fetched", "count", len(events))

	ids := marketIDs(events)
	resolutions, err := client.FetchResolutions(ctx, ids)
	if err != nil {
		slog.Error("failed to fetch resolutions", "err", err)
		os.Exit(1)
	}
	markets, err := client.FetchMarkets(ctx, ids)
	if err != nil {
		slog.Warn("market metadata unavailable, running without it", "err", err)
		markets = nil
	}

	report, err := runner.Run(ctx, events, resolutions, markets)
	if err != nil {
		slog.Error("backtest failed", "err", err)
		os.Exit(1)
	}

	console.PrintBacktest(report)
}

func runMultiPeriod(ctx context.Context, cfg *config.Config, client *polymarket.Client, console *notify.Console) {
	mpCfg := engine.MultiPeriodConfig{
		NumPeriods: cfg.Simulation.Periods,
		GapDays:    cfg.Simulation.GapDays,
		Backtest:   backtestConfig(cfg),
	}

	mp, err := engine.NewMultiPeriod(mpCfg, client)
	if err != nil {
		slog.Error("invalid multi-period config", "err", err)
		os.Exit(1)
	}

	slog.Info("multi-period backtest starting",
		"periods", mpCfg.NumPeriods,
		"window_days", mpCfg.Backtest.Days,
		"gap_days", mpCfg.GapDays,
	)

	report, err := mp.Run(ctx)
	if err != nil {
		slog.Error("multi-period backtest failed", "err", err)
		os.Exit(1)
	}

	console.PrintMultiPeriod(report)
}

func marketIDs(events []domain.TradeEvent) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, ev := range events {
		if ev.MarketID != "" && !seen[ev.MarketID] {
			seen[ev.MarketID] = true
			ids = append(ids, ev.MarketID)
		}
	}
	sort.Strings(ids)
	return ids
}
