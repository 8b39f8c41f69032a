package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mirrorstack/papersim/internal/domain"
)

const (
	tradesPerPage  = 1000
	tradesMaxPages = 10

	gammaMarketsPath  = "/markets"
	gammaConditionMax = 20
)

// FetchEvents returns public trades with from < timestamp <= to, in
// ascending timestamp order. The Data API serves trades newest-first, so
// pagination stops as soon as a page crosses the lower bound.
func (c *Client) FetchEvents(ctx context.Context, from, to time.Time) ([]domain.TradeEvent, error) {
	var all []domain.TradeEvent

	for page := 0; page < tradesMaxPages; page++ {
		offset := page * tradesPerPage
		url := fmt.Sprintf("%s/trades?limit=%d&offset=%d",
			c.dataBase, tradesPerPage, offset)

		var resp []rawDataTrade
		if err := c.get(ctx, c.dataLimiter, url, &resp); err != nil {
			return nil, fmt.Errorf("data-api.FetchEvents: %w", err)
		}
		if len(resp) == 0 {
			break
		}

		pageCrossedLowerBound := false
		for _, rt := range resp {
			ts := parseTradeTimestamp(rt.Timestamp)
			if !ts.After(from) {
				pageCrossedLowerBound = true
				continue
			}
			if ts.After(to) {
				continue
			}

			price, _ := rt.Price.Float64()
			size, _ := rt.Size.Float64()
			all = append(all, domain.TradeEvent{
				ID:        rt.ID,
				MarketID:  rt.ConditionID,
				Outcome:   rt.Outcome,
				Side:      domain.Side(strings.ToUpper(rt.Side)),
				Price:     price,
				Size:      size,
				Timestamp: ts,
			})
		}

		slog.Debug("fetched trades page",
			"page", page,
			"count", len(resp),
			"kept", len(all),
		)

		if pageCrossedLowerBound || len(resp) < tradesPerPage {
			break
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	return all, nil
}

// FetchResolutions looks up which of the given markets already settled.
// Markets that are still open, or closed without a readable outcome, are
// simply absent from the result.
func (c *Client) FetchResolutions(ctx context.Context, marketIDs []string) (map[string]domain.MarketResolution, error) {
	metadata, err := c.fetchGammaMetadata(ctx, marketIDs)
	if err != nil {
		return nil, fmt.Errorf("gamma.FetchResolutions: %w", err)
	}

	out := make(map[string]domain.MarketResolution)
	for id, gm := range metadata {
		if !gm.Closed {
			continue
		}
		winner, ok := winningOutcome(gm)
		if !ok {
			continue
		}
		resolvedAt := parseGammaTime(gm.ClosedTime)
		if resolvedAt.IsZero() {
			resolvedAt = parseGammaTime(gm.EndDateISO)
		}
		if resolvedAt.IsZero() {
			slog.Debug("closed market without resolution time, skipping", "market", id)
			continue
		}
		out[id] = domain.MarketResolution{
			MarketID:       id,
			WinningOutcome: winner,
			ResolvedAt:     resolvedAt,
		}
	}
	return out, nil
}

// FetchMarkets returns metadata for the given markets. Markets unknown to
// Gamma are absent from the result.
func (c *Client) FetchMarkets(ctx context.Context, marketIDs []string) (map[string]domain.Market, error) {
	metadata, err := c.fetchGammaMetadata(ctx, marketIDs)
	if err != nil {
		return nil, fmt.Errorf("gamma.FetchMarkets: %w", err)
	}

	out := make(map[string]domain.Market, len(metadata))
	for id, gm := range metadata {
		liquidity, _ := gm.Liquidity.Float64()
		out[id] = domain.Market{
			ID:        id,
			Question:  gm.Question,
			Category:  strings.ToLower(gm.Category),
			Liquidity: liquidity,
			EndDate:   parseGammaTime(gm.EndDateISO),
		}
	}
	return out, nil
}

// fetchGammaMetadata queries Gamma in batches of condition ids. A failed
// batch is skipped rather than failing the whole lookup.
func (c *Client) fetchGammaMetadata(ctx context.Context, conditionIDs []string) (map[string]gammaMarket, error) {
	result := make(map[string]gammaMarket, len(conditionIDs))

	for i := 0; i < len(conditionIDs); i += gammaConditionMax {
		end := i + gammaConditionMax
		if end > len(conditionIDs) {
			end = len(conditionIDs)
		}
		batch := conditionIDs[i:end]

		url := fmt.Sprintf("%s%s?condition_ids=%s&limit=%d",
			c.gammaBase,
			gammaMarketsPath,
			strings.Join(batch, ","),
			gammaConditionMax,
		)

		var resp gammaMarketsResponse
		if err := c.get(ctx, c.gammaLimiter, url, &resp); err != nil {
			slog.Debug("gamma batch failed, skipping",
				"batch", fmt.Sprintf("%d-%d", i, end),
				"err", err,
			)
			continue
		}

		for _, gm := range resp {
			result[gm.ConditionID] = gm
		}
	}

	return result, nil
}

// winningOutcome decodes Gamma's string-encoded outcome arrays and picks
// the outcome whose settlement price is highest (1.0 for the winner).
func winningOutcome(gm gammaMarket) (string, bool) {
	var outcomes []string
	var prices []string
	if json.Unmarshal([]byte(gm.Outcomes), &outcomes) != nil ||
		json.Unmarshal([]byte(gm.OutcomePrices), &prices) != nil {
		return "", false
	}
	if len(outcomes) == 0 || len(outcomes) != len(prices) {
		return "", false
	}

	best := -1
	bestPrice := 0.0
	for i, ps := range prices {
		p, err := strconv.ParseFloat(ps, 64)
		if err != nil {
			return "", false
		}
		if p > bestPrice {
			bestPrice = p
			best = i
		}
	}
	// A settled market pays ~1.0 on the winning side; anything ambiguous
	// is treated as unresolved.
	if best < 0 || bestPrice < 0.95 {
		return "", false
	}
	return outcomes[best], true
}

func parseTradeTimestamp(n json.Number) time.Time {
	s := n.String()
	// Unix timestamp, seconds or milliseconds
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		if sec > 1e12 {
			return time.Unix(sec/1000, (sec%1000)*int64(time.Millisecond)).UTC()
		}
		return time.Unix(sec, 0).UTC()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec := int64(f)
		nsec := int64((f - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC()
	}
	for _, layout := range []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02T15:04:05.000Z", "2006-01-02T15:04:05Z",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseGammaTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339Nano, time.RFC3339,
		"2006-01-02 15:04:05-07",
		"2006-01-02 15:04:05+00",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
