package notify_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/mirrorstack/papersim/internal/adapters/notify"
	"github.com/mirrorstack/papersim/internal/application/engine"
	"github.com/mirrorstack/papersim/internal/domain"
	"github.com/stretchr/testify/assert"
)

func sampleReport() *engine.BacktestReport {
	end := time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC)
	return &engine.BacktestReport{
		Config: engine.ConfigView{
			Days:           7,
			InitialCapital: 1000,
			Start:          end.Add(-7 * 24 * time.Hour),
			End:            end,
		},
		Summary: engine.Summary{TradesProcessed: 12, TradesEntered: 3},
		Rankings: []domain.RankingEntry{
			{Rank: 1, StrategyID: "contrarian", StrategyName: "Contrarian",
				Total: 1144, ROI: 0.144, WinRate: 1, TotalPnL: 144, TradesEntered: 1},
		},
		Portfolios: map[string]engine.PortfolioView{
			"contrarian": {
				StrategyID:   "contrarian",
				StrategyName: "Contrarian",
				Available:    1044,
				Cooldown:     100,
				Total:        1144,
				Metrics:      domain.PerformanceMetrics{WonCount: 1, AvgWin: 144, TotalPnL: 144},
			},
		},
	}
}

func TestPrintBacktest(t *testing.T) {
	var buf bytes.Buffer
	console := notify.NewConsoleWriter(&buf)
	console.PrintBacktest(sampleReport())

	out := buf.String()
	assert.Contains(t, out, "Contrarian")
	assert.Contains(t, out, "$1144.00")
	assert.Contains(t, out, "+14.40%")
	assert.Contains(t, out, "12 processed")
}

func TestPrintSessionStatus_WithLogs(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	status := &engine.SessionStatus{
		Session: domain.LiveSession{
			ID:       "sess-1",
			StartsAt: now,
			EndsAt:   now.Add(7 * 24 * time.Hour),
			Cursor:   now.Add(time.Hour),
			State:    domain.SessionActive,
			Config:   domain.SessionConfig{InitialCapital: 1000},
		},
		Rankings: []domain.RankingEntry{
			{Rank: 1, StrategyID: "heavy-favorite", StrategyName: "Heavy Favorite", Total: 1000},
		},
		Logs: []domain.SessionLog{
			{Timestamp: now.Add(30 * time.Minute), StrategyID: "heavy-favorite",
				Kind: "entry", Message: "entered 0xaaa Yes @ 0.80 for $100.00"},
		},
	}

	var buf bytes.Buffer
	console := notify.NewConsoleWriter(&buf)
	console.PrintSessionStatus(status)

	out := buf.String()
	assert.Contains(t, out, "sess-1")
	assert.Contains(t, out, "ACTIVE")
	assert.Contains(t, out, "entered 0xaaa")
}
