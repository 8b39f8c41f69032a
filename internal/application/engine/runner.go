package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mirrorstack/papersim/internal/domain"
)

// Runner replays a bounded, time-ordered slice of trade events and
// resolutions through one portfolio per strategy. Given identical inputs
// two runs produce bit-identical portfolios: there is no wall clock, no
// randomness, and every iteration order is fixed.
type Runner struct {
	cfg BacktestConfig
}

// NewRunner validates the configuration before any state is created.
func NewRunner(cfg BacktestConfig) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine.NewRunner: %w", err)
	}
	if cfg.End.IsZero() {
		return nil, fmt.Errorf("engine.NewRunner: %w: window end not set", ErrInvalidConfig)
	}
	return &Runner{cfg: cfg}, nil
}

// Run executes the backtest. Events outside the configured window are
// ignored; resolutions arriving after window end leave their positions
// OPEN and the market counted as unresolved.
func (r *Runner) Run(ctx context.Context, events []domain.TradeEvent, resolutions map[string]domain.MarketResolution, markets map[string]domain.Market) (*BacktestReport, error) {
	start, end := r.cfg.Window()

	portfolios := make([]*domain.Portfolio, len(r.cfg.Strategies))
	for i, s := range r.cfg.Strategies {
		portfolios[i] = domain.NewPortfolio(s.ID(), s.Name(), r.cfg.InitialCapital)
	}

	windowed := make([]domain.TradeEvent, 0, len(events))
	for _, ev := range events {
		if ev.Timestamp.After(start) && !ev.Timestamp.After(end) {
			windowed = append(windowed, ev)
		}
	}
	sort.SliceStable(windowed, func(i, j int) bool {
		return windowed[i].Timestamp.Before(windowed[j].Timestamp)
	})

	f := newFold(foldConfig{
		slippagePct:  r.cfg.SlippagePct,
		cooldown:     r.cfg.CooldownDuration(),
		perTradeCap:  r.cfg.PerTradeCap(),
		minOrderSize: r.cfg.MinOrderSize,
		category:     r.cfg.Category,
	}, r.cfg.Strategies, portfolios, markets)

	for _, item := range buildTimeline(windowed, resolutions, end) {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("engine.Run: %w", ctx.Err())
		default:
		}

		f.tick(item.at)
		if item.ev != nil {
			f.applyTrade(*item.ev)
		} else if err := f.applyResolution(*item.res); err != nil {
			return nil, fmt.Errorf("engine.Run: %w", err)
		}
	}

	// Final tick: matured cooldown funds settle, the rest stays reported
	// as cooldown.
	f.tick(end)
	f.finish()

	slog.Debug("backtest complete",
		"events", f.summary.TradesProcessed,
		"entered", f.summary.TradesEntered,
		"resolved", f.summary.PositionsResolved,
		"markets", f.summary.MarketsTouched,
	)

	names := make([]string, len(r.cfg.Strategies))
	for i, s := range r.cfg.Strategies {
		names[i] = s.ID()
	}

	return &BacktestReport{
		Config: ConfigView{
			Days:           r.cfg.Days,
			InitialCapital: r.cfg.InitialCapital,
			SlippagePct:    r.cfg.SlippagePct,
			CooldownHours:  r.cfg.CooldownHours,
			Start:          start,
			End:            end,
			Strategies:     names,
		},
		Summary:    f.summary,
		Rankings:   domain.RankPortfolios(portfolios),
		Portfolios: buildPortfolioViews(portfolios),
	}, nil
}
