package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func buyEvent(market string, price float64, at time.Time) TradeEvent {
	return TradeEvent{
		ID:        "t-" + market,
		MarketID:  market,
		Outcome:   "Yes",
		Side:      SideBuy,
		Price:     price,
		Size:      500,
		Timestamp: at,
	}
}

func checkInvariant(t *testing.T, p *Portfolio) {
	t.Helper()
	assert.InDelta(t, p.Total(), p.Available+p.Locked+p.Cooldown, 1e-9)
}

func TestEnter_MovesAvailableToLocked(t *testing.T) {
	p := NewPortfolio("fav", "Heavy Favorites", 1000)

	pos := p.Enter(buyEvent("0xaaa", 0.40, t0), 100)
	require.NotNil(t, pos)

	assert.Equal(t, 900.0, p.Available)
	assert.Equal(t, 100.0, p.Locked)
	assert.Equal(t, PositionOpen, pos.Status)
	assert.Equal(t, 1, p.OpenInMarket("0xaaa"))
	checkInvariant(t, p)
}

func TestEnter_InsufficientCapitalIsNoOp(t *testing.T) {
	p := NewPortfolio("fav", "Heavy Favorites", 50)

	assert.Nil(t, p.Enter(buyEvent("0xaaa", 0.40, t0), 100))
	assert.Nil(t, p.Enter(buyEvent("0xaaa", 0.40, t0), 0))
	assert.Nil(t, p.Enter(buyEvent("0xaaa", 0.40, t0), -5))

	assert.Equal(t, 50.0, p.Available)
	assert.Empty(t, p.Positions)
	checkInvariant(t, p)
}

// Scenario from the dashboard docs: $1,000 capital, $100 stake at 0.40,
// market resolves WON with 4% slippage → pnl = 100×(1/0.40 − 1)×0.96 = $144.
func TestResolve_WonCreditsCooldown(t *testing.T) {
	p := NewPortfolio("fav", "Heavy Favorites", 1000)
	pos := p.Enter(buyEvent("0xaaa", 0.40, t0), 100)
	require.NotNil(t, pos)

	resolvedAt := t0.Add(2 * time.Hour)
	require.NoError(t, p.Resolve(pos, true, 0.04, resolvedAt))

	assert.Equal(t, PositionWon, pos.Status)
	assert.InDelta(t, 144.0, pos.PnL, 0.001)
	assert.InDelta(t, 1144.0, p.Total(), 0.001)

	// Proceeds sit in cooldown immediately after resolution.
	assert.InDelta(t, 900.0, p.Available, 0.001)
	assert.Equal(t, 0.0, p.Locked)
	assert.InDelta(t, 244.0, p.Cooldown, 0.001)
	assert.Equal(t, 0, p.OpenInMarket("0xaaa"))
	checkInvariant(t, p)

	// Before the window elapses nothing moves.
	p.TickCooldown(resolvedAt.Add(59*time.Minute), time.Hour)
	assert.InDelta(t, 244.0, p.Cooldown, 0.001)

	// At resolvedAt + cooldown the proceeds become available.
	p.TickCooldown(resolvedAt.Add(time.Hour), time.Hour)
	assert.Equal(t, 0.0, p.Cooldown)
	assert.InDelta(t, 1144.0, p.Available, 0.001)
	checkInvariant(t, p)
}

func TestResolve_LostBurnsInvested(t *testing.T) {
	p := NewPortfolio("con", "Contrarian", 1000)
	pos := p.Enter(buyEvent("0xbbb", 0.25, t0), 80)
	require.NotNil(t, pos)

	require.NoError(t, p.Resolve(pos, false, 0.04, t0.Add(time.Hour)))

	assert.Equal(t, PositionLost, pos.Status)
	assert.Equal(t, -80.0, pos.PnL)
	assert.InDelta(t, 920.0, p.Total(), 0.001)
	assert.Equal(t, 0.0, p.Cooldown) // nothing to settle on a total loss
	assert.Empty(t, p.Pending)
	checkInvariant(t, p)
}

func TestResolve_NonOpenIsStateError(t *testing.T) {
	p := NewPortfolio("fav", "Heavy Favorites", 1000)
	pos := p.Enter(buyEvent("0xaaa", 0.50, t0), 100)
	require.NoError(t, p.Resolve(pos, true, 0, t0.Add(time.Hour)))

	err := p.Resolve(pos, false, 0, t0.Add(2*time.Hour))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPositionNotOpen)
	assert.Equal(t, PositionWon, pos.Status, "status never transitions backward")
}

func TestTotal_OnlyChangesAtResolution(t *testing.T) {
	p := NewPortfolio("fav", "Heavy Favorites", 1000)

	pos := p.Enter(buyEvent("0xaaa", 0.60, t0), 200)
	assert.Equal(t, 1000.0, p.Total(), "entering moves capital between pools only")

	p.TickCooldown(t0.Add(time.Hour), time.Hour)
	assert.Equal(t, 1000.0, p.Total())

	require.NoError(t, p.Resolve(pos, true, 0, t0.Add(time.Hour)))
	assert.Greater(t, p.Total(), 1000.0)
}

func TestTickCooldown_ReleasesOnlyMaturedEntries(t *testing.T) {
	p := NewPortfolio("fav", "Heavy Favorites", 1000)

	first := p.Enter(buyEvent("0xaaa", 0.50, t0), 100)
	second := p.Enter(buyEvent("0xbbb", 0.50, t0), 100)
	require.NoError(t, p.Resolve(first, true, 0, t0.Add(1*time.Hour)))
	require.NoError(t, p.Resolve(second, true, 0, t0.Add(3*time.Hour)))

	p.TickCooldown(t0.Add(3*time.Hour+30*time.Minute), 2*time.Hour)

	assert.InDelta(t, 1000.0, p.Available, 0.001) // 800 + first's 200
	assert.InDelta(t, 200.0, p.Cooldown, 0.001)   // second still settling
	assert.Len(t, p.Pending, 1)
	checkInvariant(t, p)
}

func TestMetrics_WinRateAndProfitFactor(t *testing.T) {
	p := NewPortfolio("fav", "Heavy Favorites", 1000)

	a := p.Enter(buyEvent("0xaaa", 0.50, t0), 100)
	b := p.Enter(buyEvent("0xbbb", 0.50, t0), 100)
	c := p.Enter(buyEvent("0xccc", 0.50, t0), 100)
	require.NoError(t, p.Resolve(a, true, 0, t0.Add(time.Hour)))
	require.NoError(t, p.Resolve(b, true, 0, t0.Add(time.Hour)))
	require.NoError(t, p.Resolve(c, false, 0, t0.Add(time.Hour)))

	m := p.Metrics()
	assert.Equal(t, 3, m.TradesEntered)
	assert.Equal(t, 2, m.WonCount)
	assert.Equal(t, 1, m.LostCount)
	assert.InDelta(t, 2.0/3.0, m.WinRate, 0.001)
	assert.InDelta(t, 100.0, m.AvgWin, 0.001)
	assert.InDelta(t, -100.0, m.AvgLoss, 0.001)
	assert.InDelta(t, 2.0, m.ProfitFactor, 0.001)
	assert.InDelta(t, 100.0, m.TotalPnL, 0.001)
}

func TestMetrics_ProfitFactorInfiniteWithoutLosses(t *testing.T) {
	p := NewPortfolio("fav", "Heavy Favorites", 1000)
	pos := p.Enter(buyEvent("0xaaa", 0.50, t0), 100)
	require.NoError(t, p.Resolve(pos, true, 0, t0.Add(time.Hour)))

	m := p.Metrics()
	assert.True(t, math.IsInf(m.ProfitFactor, 1))
}

func TestMaxDrawdown_PeakToTrough(t *testing.T) {
	p := NewPortfolio("con", "Contrarian", 1000)

	// Win first: total 1100 (new peak), then lose 200: total 900.
	w := p.Enter(buyEvent("0xaaa", 0.50, t0), 100)
	require.NoError(t, p.Resolve(w, true, 0, t0.Add(time.Hour)))
	p.TickCooldown(t0.Add(2*time.Hour), time.Hour)

	l := p.Enter(buyEvent("0xbbb", 0.50, t0.Add(2*time.Hour)), 200)
	require.NoError(t, p.Resolve(l, false, 0, t0.Add(3*time.Hour)))

	m := p.Metrics()
	assert.InDelta(t, (1100.0-900.0)/1100.0, m.MaxDrawdown, 0.001)
}

func TestRebuildIndex_AfterStorageLoad(t *testing.T) {
	p := NewPortfolio("sing", "Singles Only", 1000)
	p.Enter(buyEvent("0xaaa", 0.50, t0), 100)

	// Simulate a storage round-trip: derived state dropped.
	loaded := &Portfolio{
		StrategyID:     p.StrategyID,
		StrategyName:   p.StrategyName,
		InitialCapital: p.InitialCapital,
		Available:      p.Available,
		Locked:         p.Locked,
		Positions:      p.Positions,
	}
	loaded.RebuildIndex()

	assert.Equal(t, 1, loaded.OpenInMarket("0xaaa"))
	assert.Equal(t, 0, loaded.OpenInMarket("0xbbb"))
}
