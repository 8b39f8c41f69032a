// Package engine is the paper-trading simulation core: it folds ordered
// trade events and market resolutions through one portfolio ledger per
// strategy, for historical backtests, multi-period backtests and durable
// live sessions.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/mirrorstack/papersim/internal/strategy"
)

// ErrInvalidConfig marks configuration rejected before any portfolio is
// created.
var ErrInvalidConfig = errors.New("invalid config")

const (
	// DefaultPerTradeCapPct caps a single stake at this fraction of the
	// initial capital.
	DefaultPerTradeCapPct = 0.10
	// DefaultMinOrderSize is the dust floor for sized stakes.
	DefaultMinOrderSize = strategy.DefaultMinOrderSize
)

// BacktestConfig configures one simulation run.
type BacktestConfig struct {
	Days           int
	InitialCapital float64
	SlippagePct    float64 // 0–1, applied against the theoretical payout
	CooldownHours  float64 // settlement latency for closed-position proceeds
	PerTradeCapPct float64 // fraction of initial capital, defaulted
	MinOrderSize   float64 // defaulted
	Category       string  // optional market category filter
	End            time.Time // window end; zero means "now" at run time

	Strategies []strategy.Strategy // defaulted to the full set
}

// Validate rejects invalid parameters and fills defaults. It must pass
// before any state is created.
func (c *BacktestConfig) Validate() error {
	if c.Days <= 0 {
		return fmt.Errorf("%w: days must be positive, got %d", ErrInvalidConfig, c.Days)
	}
	if c.InitialCapital <= 0 {
		return fmt.Errorf("%w: initial capital must be positive, got %.2f", ErrInvalidConfig, c.InitialCapital)
	}
	if c.SlippagePct < 0 || c.SlippagePct >= 1 {
		return fmt.Errorf("%w: slippage must be in [0,1), got %.3f", ErrInvalidConfig, c.SlippagePct)
	}
	if c.CooldownHours < 0 {
		return fmt.Errorf("%w: cooldown hours must be non-negative, got %.1f", ErrInvalidConfig, c.CooldownHours)
	}
	if c.PerTradeCapPct < 0 || c.PerTradeCapPct > 1 {
		return fmt.Errorf("%w: per-trade cap must be in [0,1], got %.3f", ErrInvalidConfig, c.PerTradeCapPct)
	}
	if c.PerTradeCapPct == 0 {
		c.PerTradeCapPct = DefaultPerTradeCapPct
	}
	if c.MinOrderSize <= 0 {
		c.MinOrderSize = DefaultMinOrderSize
	}
	if len(c.Strategies) == 0 {
		c.Strategies = strategy.All()
	}
	return nil
}

// Window returns the simulated time range. The zero End is resolved by
// the caller before running so the fold itself never reads the wall clock.
func (c BacktestConfig) Window() (start, end time.Time) {
	end = c.End
	start = end.Add(-time.Duration(c.Days) * 24 * time.Hour)
	return start, end
}

// PerTradeCap is the absolute per-stake cap in capital units.
func (c BacktestConfig) PerTradeCap() float64 {
	return c.InitialCapital * c.PerTradeCapPct
}

// CooldownDuration converts the configured hours to a duration.
func (c BacktestConfig) CooldownDuration() time.Duration {
	return time.Duration(c.CooldownHours * float64(time.Hour))
}

// MultiPeriodConfig configures N disjoint backtest windows walking
// backward from the reference end, each separated by GapDays.
type MultiPeriodConfig struct {
	NumPeriods   int
	GapDays      int
	HistoryStart time.Time // earliest usable history; zero = unbounded
	Backtest     BacktestConfig
}

// Validate rejects invalid parameters and fills defaults.
func (c *MultiPeriodConfig) Validate() error {
	if c.NumPeriods <= 0 {
		return fmt.Errorf("%w: periods must be positive, got %d", ErrInvalidConfig, c.NumPeriods)
	}
	if c.GapDays < 0 {
		return fmt.Errorf("%w: gap days must be non-negative, got %d", ErrInvalidConfig, c.GapDays)
	}
	return c.Backtest.Validate()
}

// LiveConfig configures a durable live session.
type LiveConfig struct {
	InitialCapital float64
	DurationDays   int
	SlippagePct    float64
	CooldownHours  float64
	PerTradeCapPct float64
	Category       string
}

// Validate rejects invalid parameters and fills defaults.
func (c *LiveConfig) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("%w: initial capital must be positive, got %.2f", ErrInvalidConfig, c.InitialCapital)
	}
	if c.DurationDays <= 0 {
		return fmt.Errorf("%w: duration days must be positive, got %d", ErrInvalidConfig, c.DurationDays)
	}
	if c.SlippagePct < 0 || c.SlippagePct >= 1 {
		return fmt.Errorf("%w: slippage must be in [0,1), got %.3f", ErrInvalidConfig, c.SlippagePct)
	}
	if c.CooldownHours < 0 {
		return fmt.Errorf("%w: cooldown hours must be non-negative, got %.1f", ErrInvalidConfig, c.CooldownHours)
	}
	if c.PerTradeCapPct < 0 || c.PerTradeCapPct > 1 {
		return fmt.Errorf("%w: per-trade cap must be in [0,1], got %.3f", ErrInvalidConfig, c.PerTradeCapPct)
	}
	if c.PerTradeCapPct == 0 {
		c.PerTradeCapPct = DefaultPerTradeCapPct
	}
	return nil
}
