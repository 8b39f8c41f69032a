package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mirrorstack/papersim/internal/domain"
	"github.com/mirrorstack/papersim/internal/ports"
)

// MultiPeriod runs the Simulation Runner over N disjoint historical
// windows and statistically combines the results. Windows walk backward
// from the reference end by duration+gap, so the sample is deterministic:
// never cherry-picked, never overlapping.
type MultiPeriod struct {
	cfg    MultiPeriodConfig
	source ports.TradeSource
}

// NewMultiPeriod validates the configuration.
func NewMultiPeriod(cfg MultiPeriodConfig, source ports.TradeSource) (*MultiPeriod, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine.NewMultiPeriod: %w", err)
	}
	if cfg.Backtest.End.IsZero() {
		return nil, fmt.Errorf("engine.NewMultiPeriod: %w: reference end not set", ErrInvalidConfig)
	}
	return &MultiPeriod{cfg: cfg, source: source}, nil
}

type window struct {
	start, end time.Time
}

// windows selects up to NumPeriods non-overlapping windows. When history
// cannot supply N windows the count is reduced; smaller honest samples
// beat fabricated ones.
func (m *MultiPeriod) windows() []window {
	span := time.Duration(m.cfg.Backtest.Days) * 24 * time.Hour
	gap := time.Duration(m.cfg.GapDays) * 24 * time.Hour

	var out []window
	end := m.cfg.Backtest.End
	for i := 0; i < m.cfg.NumPeriods; i++ {
		start := end.Add(-span)
		if !m.cfg.HistoryStart.IsZero() && start.Before(m.cfg.HistoryStart) {
			break
		}
		out = append(out, window{start: start, end: end})
		end = start.Add(-gap)
	}

	// Chronological order for reporting.
	sort.Slice(out, func(i, j int) bool { return out[i].start.Before(out[j].start) })
	return out
}

// Run executes every window and aggregates per-strategy statistics.
func (m *MultiPeriod) Run(ctx context.Context) (*MultiPeriodReport, error) {
	wins := m.windows()
	if len(wins) == 0 {
		return nil, fmt.Errorf("engine.MultiPeriod.Run: %w: no usable windows in available history", ErrInvalidConfig)
	}
	if len(wins) < m.cfg.NumPeriods {
		slog.Warn("multi-period: history too short, reducing periods",
			"requested", m.cfg.NumPeriods, "usable", len(wins))
	}

	report := &MultiPeriodReport{
		Periods:    len(wins),
		WindowDays: m.cfg.Backtest.Days,
		GapDays:    m.cfg.GapDays,
	}
	for i, w := range wins {
		periodCfg := m.cfg.Backtest
		periodCfg.End = w.end

		result, err := m.runWindow(ctx, periodCfg)
		if err != nil {
			return nil, fmt.Errorf("engine.MultiPeriod.Run: period %d: %w", i+1, err)
		}
		report.PeriodResults = append(report.PeriodResults, PeriodResult{
			Index:    i + 1,
			Start:    w.start,
			End:      w.end,
			Summary:  result.Summary,
			Rankings: result.Rankings,
		})
	}

	report.AggregatedRankings = aggregate(report.PeriodResults)
	return report, nil
}

func (m *MultiPeriod) runWindow(ctx context.Context, cfg BacktestConfig) (*BacktestReport, error) {
	runner, err := NewRunner(cfg)
	if err != nil {
		return nil, err
	}

	start, end := cfg.Window()
	events, err := m.source.FetchEvents(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}

	ids := distinctMarkets(events)
	resolutions, err := m.source.FetchResolutions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch resolutions: %w", err)
	}
	markets, err := m.source.FetchMarkets(ctx, ids)
	if err != nil {
		// Metadata only sharpens strategy context; run without it.
		slog.Warn("multi-period: market metadata unavailable", "err", err)
		markets = nil
	}

	return runner.Run(ctx, events, resolutions, markets)
}

// aggregate combines per-period rankings into per-strategy statistics.
func aggregate(periods []PeriodResult) []AggregateEntry {
	byID := make(map[string]*AggregateEntry)
	order := []string{}

	n := float64(len(periods))
	for _, period := range periods {
		for _, r := range period.Rankings {
			e := byID[r.StrategyID]
			if e == nil {
				e = &AggregateEntry{StrategyID: r.StrategyID, StrategyName: r.StrategyName}
				byID[r.StrategyID] = e
				order = append(order, r.StrategyID)
			}
			e.AvgROI += r.ROI / n
			e.AvgWinRate += r.WinRate / n
			e.AvgMaxDrawdown += r.MaxDrawdown / n
			e.TotalTrades += r.TradesEntered
			if r.Rank == 1 {
				e.PeriodsWon++
			}
			if r.Rank <= 2 {
				e.Consistency += 1 / n
			}
		}
	}

	out := make([]AggregateEntry, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AvgROI != b.AvgROI {
			return a.AvgROI > b.AvgROI
		}
		if a.Consistency != b.Consistency {
			return a.Consistency > b.Consistency
		}
		return a.StrategyID < b.StrategyID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func distinctMarkets(events []domain.TradeEvent) []string {
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
