package ports

import (
	"context"
	"time"

	"github.com/mirrorstack/papersim/internal/domain"
)

// TradeSource supplies externally-sourced trade events, resolutions and
// market metadata. Implementations must return events ordered by timestamp
// ascending; fetches are bounded, retryable reads.
type TradeSource interface {
	// FetchEvents returns trade events with from < timestamp ≤ to.
	FetchEvents(ctx context.Context, from, to time.Time) ([]domain.TradeEvent, error)

	// FetchResolutions returns known resolutions for the given markets.
	// Markets without a resolution yet are simply absent from the map.
	FetchResolutions(ctx context.Context, marketIDs []string) (map[string]domain.MarketResolution, error)

	// FetchMarkets returns metadata (category, liquidity) for the given
	// markets. Missing markets are absent from the map, not an error.
	FetchMarkets(ctx context.Context, marketIDs []string) (map[string]domain.Market, error)
}
