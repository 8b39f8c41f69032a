package engine

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/mirrorstack/papersim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is an in-memory ports.TradeSource.
type fakeSource struct {
	mu          sync.Mutex
	events      []domain.TradeEvent
	resolutions map[string]domain.MarketResolution
	markets     map[string]domain.Market
	fetchErr    error
	fetchCalls  int
}

func (f *fakeSource) FetchEvents(_ context.Context, from, to time.Time) ([]domain.TradeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []domain.TradeEvent
	for _, ev := range f.events {
		if ev.Timestamp.After(from) && !ev.Timestamp.After(to) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (f *fakeSource) FetchResolutions(_ context.Context, marketIDs []string) (map[string]domain.MarketResolution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make(map[string]domain.MarketResolution)
	for _, id := range marketIDs {
		if res, ok := f.resolutions[id]; ok {
			out[id] = res
		}
	}
	return out, nil
}

func (f *fakeSource) FetchMarkets(_ context.Context, marketIDs []string) (map[string]domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]domain.Market)
	for _, id := range marketIDs {
		if m, ok := f.markets[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func multiPeriodConfig(end time.Time) MultiPeriodConfig {
	return MultiPeriodConfig{
		NumPeriods: 2,
		GapDays:    1,
		Backtest: BacktestConfig{
			Days:           1,
			InitialCapital: 1000,
			SlippagePct:    0.04,
			CooldownHours:  1,
			End:            end,
		},
	}
}

func TestWindows_DisjointAndBackward(t *testing.T) {
	end := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	cfg := multiPeriodConfig(end)
	cfg.NumPeriods = 3

	mp, err := NewMultiPeriod(cfg, &fakeSource{})
	require.NoError(t, err)

	wins := mp.windows()
	require.Len(t, wins, 3)
	for i := 1; i < len(wins); i++ {
		assert.True(t, wins[i-1].end.Before(wins[i].start), "windows must be disjoint and gapped")
	}
	assert.Equal(t, end, wins[len(wins)-1].end, "most recent window anchors at the reference end")
	assert.Equal(t, 24*time.Hour, wins[0].end.Sub(wins[0].start))
}

func TestWindows_ReducedByHistoryStart(t *testing.T) {
	end := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	cfg := multiPeriodConfig(end)
	cfg.NumPeriods = 5
	cfg.HistoryStart = end.Add(-3 * 24 * time.Hour) // room for two windows only

	mp, err := NewMultiPeriod(cfg, &fakeSource{})
	require.NoError(t, err)
	assert.Len(t, mp.windows(), 2)
}

func TestMultiPeriodRun_Aggregation(t *testing.T) {
	end := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

	// Window 2 (most recent): market A wins. Window 1: market B loses.
	winStart := end.Add(-20 * time.Hour)
	loseStart := end.Add(-(2*24 + 16) * time.Hour)

	source := &fakeSource{
		events: append(
			seededMarket("0xwin", 0.60, 0.50, winStart),
			seededMarket("0xlose", 0.60, 0.50, loseStart)...,
		),
		resolutions: map[string]domain.MarketResolution{
			"0xwin":  {MarketID: "0xwin", WinningOutcome: "Yes", ResolvedAt: winStart.Add(2 * time.Hour)},
			"0xlose": {MarketID: "0xlose", WinningOutcome: "No", ResolvedAt: loseStart.Add(2 * time.Hour)},
		},
	}

	mp, err := NewMultiPeriod(multiPeriodConfig(end), source)
	require.NoError(t, err)
	report, err := mp.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Periods)
	require.Len(t, report.PeriodResults, 2)
	assert.True(t, report.PeriodResults[0].End.Before(report.PeriodResults[1].End), "periods in chronological order")

	// avgRoi must equal the arithmetic mean of the per-period ROIs.
	perStrategy := make(map[string][]float64)
	for _, period := range report.PeriodResults {
		for _, r := range period.Rankings {
			perStrategy[r.StrategyID] = append(perStrategy[r.StrategyID], r.ROI)
		}
	}
	for _, agg := range report.AggregatedRankings {
		rois := perStrategy[agg.StrategyID]
		require.Len(t, rois, 2)
		assert.InDelta(t, (rois[0]+rois[1])/2, agg.AvgROI, 1e-9, agg.StrategyID)
		assert.GreaterOrEqual(t, agg.Consistency, 0.0)
		assert.LessOrEqual(t, agg.Consistency, 1.0)
	}

	// periodsWon sums across strategies to the total number of periods.
	totalWon := 0
	for _, agg := range report.AggregatedRankings {
		totalWon += agg.PeriodsWon
	}
	assert.Equal(t, report.Periods, totalWon)

	for i := 1; i < len(report.AggregatedRankings); i++ {
		assert.GreaterOrEqual(t,
			report.AggregatedRankings[i-1].AvgROI,
			report.AggregatedRankings[i].AvgROI,
			"aggregated ranking ordered by mean ROI")
	}
}

func TestMultiPeriodRun_NoUsableWindows(t *testing.T) {
	end := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	cfg := multiPeriodConfig(end)
	cfg.HistoryStart = end // nothing before the reference end

	mp, err := NewMultiPeriod(cfg, &fakeSource{})
	require.NoError(t, err)
	_, err = mp.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
