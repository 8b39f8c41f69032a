package notify

import (
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/mirrorstack/papersim/internal/application/engine"
	"github.com/mirrorstack/papersim/internal/domain"
)

// Console renders reports for terminal consumption.
type Console struct {
	out io.Writer
}

// NewConsole creates a renderer writing to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a renderer for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// PrintBacktest renders a single-window backtest report: the strategy
// ranking first, then the capital breakdown per portfolio.
func (c *Console) PrintBacktest(report *engine.BacktestReport) {
	cfg := report.Config
	fmt.Fprintf(c.out, "\n=== BACKTEST %s to %s (%dd, $%.0f per strategy) ===\n",
		cfg.Start.Format("2006-01-02"), cfg.End.Format("2006-01-02"),
		cfg.Days, cfg.InitialCapital)
	fmt.Fprintf(c.out, "  events: %d processed, %d entered, %d skipped | markets: %d touched, %d resolved\n",
		report.Summary.TradesProcessed, report.Summary.TradesEntered,
		report.Summary.TradesSkipped, report.Summary.MarketsTouched,
		report.Summary.MarketsWithResolution)

	c.printRankings(report.Rankings)

	for _, entry := range report.Rankings {
		view, ok := report.Portfolios[entry.StrategyID]
		if !ok {
			continue
		}
		c.printPortfolio(view)
	}
	fmt.Fprintln(c.out)
}

// PrintMultiPeriod renders the aggregate ranking across periods, then one
// compact line per period.
func (c *Console) PrintMultiPeriod(report *engine.MultiPeriodReport) {
	fmt.Fprintf(c.out, "\n=== MULTI-PERIOD: %d windows of %dd, %dd gap ===\n",
		report.Periods, report.WindowDays, report.GapDays)

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Strategy", "Avg ROI", "Avg Win%", "Trades", "Avg MaxDD", "Won", "Consistency")
	for _, agg := range report.AggregatedRankings {
		table.Append(
			fmt.Sprintf("%d", agg.Rank),
			agg.StrategyName,
			fmt.Sprintf("%+.2f%%", agg.AvgROI*100),
			fmt.Sprintf("%.1f%%", agg.AvgWinRate*100),
			fmt.Sprintf("%d", agg.TotalTrades),
			fmt.Sprintf("%.1f%%", agg.AvgMaxDrawdown*100),
			fmt.Sprintf("%d/%d", agg.PeriodsWon, report.Periods),
			fmt.Sprintf("%.0f%%", agg.Consistency*100),
		)
	}
	table.Render()

	fmt.Fprintln(c.out, "\n  Per period (winner first):")
	for i, period := range report.PeriodResults {
		label := fmt.Sprintf("%s to %s",
			period.Start.Format("01-02"), period.End.Format("01-02"))
		if len(period.Rankings) == 0 {
			fmt.Fprintf(c.out, "  #%d %s: no activity\n", i+1, label)
			continue
		}
		top := period.Rankings[0]
		fmt.Fprintf(c.out, "  #%d %s: %s %+.2f%% (%d events)\n",
			i+1, label, top.StrategyName, top.ROI*100, period.Summary.TradesProcessed)
	}
	fmt.Fprintln(c.out)
}

// PrintSessionStatus renders a live session: header, ranking and, when the
// status carries detail, portfolios plus the recent activity feed.
func (c *Console) PrintSessionStatus(status *engine.SessionStatus) {
	sess := status.Session
	fmt.Fprintf(c.out, "\n=== SESSION %s [%s] ===\n", sess.ID, sess.State)
	fmt.Fprintf(c.out, "  window: %s to %s | cursor: %s | capital: $%.0f per strategy\n",
		sess.StartsAt.Format("2006-01-02 15:04"),
		sess.EndsAt.Format("2006-01-02 15:04"),
		sess.Cursor.Format("2006-01-02 15:04:05"),
		sess.Config.InitialCapital)

	c.printRankings(status.Rankings)

	for _, entry := range status.Rankings {
		view, ok := status.Portfolios[entry.StrategyID]
		if !ok {
			continue
		}
		c.printPortfolio(view)
	}

	if len(status.Logs) > 0 {
		fmt.Fprintln(c.out, "\n  Recent activity:")
		for _, entry := range status.Logs {
			fmt.Fprintf(c.out, "  [%s] %-12s %-10s %s\n",
				entry.Timestamp.Format("01-02 15:04"),
				entry.StrategyID, entry.Kind, entry.Message)
		}
	}
	fmt.Fprintln(c.out)
}

// PrintAdvance prints the outcome of one advance in a single line.
func (c *Console) PrintAdvance(id string, result *engine.AdvanceResult) {
	fmt.Fprintf(c.out, "[%s] session %s: %d events, %d entered, %d resolved, cursor %s\n",
		time.Now().Format("15:04:05"), id,
		result.EventsProcessed, result.TradesEntered, result.PositionsResolved,
		result.Cursor.Format("2006-01-02 15:04:05"))
}

func (c *Console) printRankings(rankings []domain.RankingEntry) {
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Strategy", "Total", "ROI", "Win%", "PnL", "MaxDD", "Trades")
	for _, r := range rankings {
		table.Append(
			fmt.Sprintf("%d", r.Rank),
			r.StrategyName,
			fmt.Sprintf("$%.2f", r.Total),
			fmt.Sprintf("%+.2f%%", r.ROI*100),
			fmt.Sprintf("%.1f%%", r.WinRate*100),
			fmt.Sprintf("%+.2f", r.TotalPnL),
			fmt.Sprintf("%.1f%%", r.MaxDrawdown*100),
			fmt.Sprintf("%d", r.TradesEntered),
		)
	}
	table.Render()
}

func (c *Console) printPortfolio(view engine.PortfolioView) {
	fmt.Fprintf(c.out, "\n  %s: $%.2f (available $%.2f | locked $%.2f | cooldown $%.2f)\n",
		view.StrategyName, view.Total, view.Available, view.Locked, view.Cooldown)
	m := view.Metrics
	fmt.Fprintf(c.out, "    %dW/%dL, %d open | avg win $%.2f, avg loss $%.2f | PF %s\n",
		m.WonCount, m.LostCount, m.OpenCount, m.AvgWin, m.AvgLoss,
		profitFactorLabel(m.ProfitFactor))

	for _, pos := range view.RecentTrades {
		label := string(pos.Status)
		if pos.Closed() {
			label = fmt.Sprintf("%s %+.2f", pos.Status, pos.PnL)
		}
		fmt.Fprintf(c.out, "    %s %s @ %.2f $%.2f [%s]\n",
			truncateID(pos.MarketID), pos.Outcome, pos.EntryPrice, pos.Invested, label)
	}
}

func profitFactorLabel(pf float64) string {
	if math.IsInf(pf, 1) {
		return "INF"
	}
	return fmt.Sprintf("%.2f", pf)
}

func truncateID(s string) string {
	if len(s) > 14 {
		return s[:12] + ".."
	}
	return s
}
