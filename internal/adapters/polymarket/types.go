package polymarket

import "encoding/json"

// --- Data API ---

// rawDataTrade is one trade from GET /trades on the public Data API.
// Numeric fields arrive as either numbers or strings, hence json.Number.
type rawDataTrade struct {
	ID          string      `json:"id"`
	ConditionID string      `json:"conditionId"`
	Outcome     string      `json:"outcome"`
	Side        string      `json:"side"`
	Price       json.Number `json:"price"`
	Size        json.Number `json:"size"`
	Timestamp   json.Number `json:"timestamp"`
}

// --- Gamma API ---

// gammaMarketsResponse is the response of GET /markets on Gamma.
type gammaMarketsResponse []gammaMarket

// gammaMarket holds enriched market metadata. Outcomes and OutcomePrices
// are JSON arrays encoded as strings, e.g. `["Yes","No"]`.
type gammaMarket struct {
	ConditionID   string      `json:"conditionId"`
	Question      string      `json:"question"`
	Category      string      `json:"category"`
	EndDateISO    string      `json:"endDateIso"`
	ClosedTime    string      `json:"closedTime"`
	Volume        json.Number `json:"volume"`
	Liquidity     json.Number `json:"liquidity"`
	Outcomes      string      `json:"outcomes"`
	OutcomePrices string      `json:"outcomePrices"`
	Active        bool        `json:"active"`
	Closed        bool        `json:"closed"`
}
