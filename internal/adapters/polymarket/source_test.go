package polymarket_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/mirrorstack/papersim/internal/adapters/polymarket"
	"github.com/mirrorstack/papersim/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(dataSrv, gammaSrv *httptest.Server) *polymarket.Client {
	dataURL := ""
	gammaURL := ""
	if dataSrv != nil {
		dataURL = dataSrv.URL
	}
	if gammaSrv != nil {
		gammaURL = gammaSrv.URL
	}
	return polymarket.NewClient(dataURL, gammaURL)
}

func rawTrade(id, market string, price float64, ts time.Time) map[string]any {
	return map[string]any{
		"id":          id,
		"conditionId": market,
		"outcome":     "Yes",
		"side":        "BUY",
		"price":       price,
		"size":        100.0,
		"timestamp":   ts.Unix(),
	}
}

func TestFetchEvents_WindowAndOrder(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Newest-first, as the Data API serves them.
	page := []map[string]any{
		rawTrade("t3", "0xaaa", 0.55, base.Add(3*time.Minute)),
		rawTrade("t2", "0xaaa", 0.52, base.Add(2*time.Minute)),
		rawTrade("t1", "0xaaa", 0.50, base.Add(time.Minute)),
		rawTrade("t0", "0xaaa", 0.48, base), // at the lower bound: excluded
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trades", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)
	events, err := client.FetchEvents(context.Background(), base, base.Add(2*time.Minute))
	require.NoError(t, err)

	require.Len(t, events, 2, "strictly after from, up to and including to")
	assert.Equal(t, "t1", events[0].ID, "ascending timestamp order")
	assert.Equal(t, "t2", events[1].ID)
	assert.Equal(t, domain.SideBuy, events[0].Side)
	assert.InDelta(t, 0.50, events[0].Price, 1e-9)
	assert.True(t, events[0].Timestamp.Equal(base.Add(time.Minute)))
}

func TestFetchEvents_StopsPagingAtLowerBound(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var pagesServed int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesServed++
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		require.Equal(t, 0, offset, "no second page once the window is covered")

		// A full page whose tail is already older than the window.
		page := make([]map[string]any, 0, 1000)
		for i := 0; i < 1000; i++ {
			page = append(page, rawTrade(
				fmt.Sprintf("t%d", i), "0xaaa", 0.5,
				base.Add(-time.Duration(i-5)*time.Second),
			))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(page)
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)
	events, err := client.FetchEvents(context.Background(), base, base.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, 1, pagesServed)
	assert.Len(t, events, 5)
}

func TestFetchEvents_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := newTestClient(srv, nil)
	_, err := client.FetchEvents(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
}

func gammaPayload() []map[string]any {
	return []map[string]any{
		{
			"conditionId":   "0xsettled",
			"question":      "Will X happen?",
			"category":      "Politics",
			"closed":        true,
			"closedTime":    "2025-06-01 18:00:00+00",
			"endDateIso":    "2025-06-01",
			"liquidity":     "42000.5",
			"outcomes":      `["Yes","No"]`,
			"outcomePrices": `["1","0"]`,
		},
		{
			"conditionId":   "0xopen",
			"question":      "Will Y happen?",
			"category":      "Sports",
			"closed":        false,
			"liquidity":     "1000",
			"outcomes":      `["Yes","No"]`,
			"outcomePrices": `["0.6","0.4"]`,
		},
	}
}

func TestFetchResolutions_OnlySettledMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/markets", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("condition_ids"), "0xsettled")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(gammaPayload())
	}))
	defer srv.Close()

	client := newTestClient(nil, srv)
	resolutions, err := client.FetchResolutions(context.Background(), []string{"0xsettled", "0xopen"})
	require.NoError(t, err)

	require.Len(t, resolutions, 1, "open markets carry no resolution")
	res := resolutions["0xsettled"]
	assert.Equal(t, "Yes", res.WinningOutcome)
	assert.True(t, res.ResolvedAt.Equal(time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)))
}

func TestFetchMarkets_Metadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(gammaPayload())
	}))
	defer srv.Close()

	client := newTestClient(nil, srv)
	markets, err := client.FetchMarkets(context.Background(), []string{"0xsettled", "0xopen"})
	require.NoError(t, err)

	require.Len(t, markets, 2)
	m := markets["0xsettled"]
	assert.Equal(t, "Will X happen?", m.Question)
	assert.Equal(t, "politics", m.Category, "categories normalized to lowercase")
	assert.InDelta(t, 42000.5, m.Liquidity, 1e-9)
}
