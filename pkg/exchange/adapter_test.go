package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/funding-collector/internal/models"
	"github.com/irfndi/funding-collector/internal/utils"
)

var fixedNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestAdapter(t *testing.T, variant Variant, handler http.Handler, settings Settings) *MarketAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger, _ := test.NewNullLogger()
	settings.BaseURL = server.URL
	if settings.Timeout == 0 {
		settings.Timeout = 2 * time.Second
	}
	adapter := New(variant, settings, logger)
	adapter.now = func() time.Time { return fixedNow }
	return adapter
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func float(v float64) *float64 { return &v }

func TestNew_AppliesVariantDefaults(t *testing.T) {
	logger, _ := test.NewNullLogger()
	adapter := New(Paradex, Settings{}, logger)

	assert.Equal(t, "paradex", adapter.Name())
	assert.Equal(t, Paradex.BaseURL, adapter.settings.BaseURL)
	assert.Equal(t, Paradex.QuotePriority, adapter.settings.QuotePriority)
	assert.Equal(t, 10*time.Minute, adapter.settings.CatalogTTL)
	assert.Equal(t, 1, adapter.settings.MaxConcurrency)
	assert.Equal(t, models.Liquidity{Long: 1_000_000, Short: 1_000_000}, adapter.settings.Placeholder)
}

func TestBuildRecord_NextFunding(t *testing.T) {
	logger, _ := test.NewNullLogger()
	adapter := New(Paradex, Settings{}, logger)
	entry := perp("BTC-USD-PERP", "BTC", "USD")

	record := adapter.BuildRecord(entry, models.LiveStats{FundingRate: 0.0001, NextFundingAtMs: 1_767_254_400}, fixedNow)
	assert.Equal(t, int64(1_767_254_400_000), record.NextFundingAtMs)

	record = adapter.BuildRecord(entry, models.LiveStats{FundingRate: 0.0001}, fixedNow)
	assert.Equal(t, fixedNow.Add(8*time.Hour).UnixMilli(), record.NextFundingAtMs)

	entry.Meta.FundingPeriod = time.Hour
	record = adapter.BuildRecord(entry, models.LiveStats{FundingRate: 0.0001}, fixedNow)
	assert.Equal(t, fixedNow.Add(time.Hour).UnixMilli(), record.NextFundingAtMs)
}

func TestBuildRecord_Fees(t *testing.T) {
	logger, _ := test.NewNullLogger()
	adapter := New(Paradex, Settings{}, logger)
	entry := perp("BTC-USD-PERP", "BTC", "USD")

	record := adapter.BuildRecord(entry, models.LiveStats{}, fixedNow)
	assert.Equal(t, models.Fees{Maker: 0.0002, Taker: 0.0005}, record.Fees)

	entry.Meta.MakerFee = float(-0.0001)
	record = adapter.BuildRecord(entry, models.LiveStats{}, fixedNow)
	assert.Equal(t, models.Fees{Maker: -0.0001, Taker: 0.0005}, record.Fees)
}

func TestBuildRecord_Liquidity(t *testing.T) {
	logger, _ := test.NewNullLogger()
	placeholder := models.Liquidity{Long: 42, Short: 24}
	entry := perp("BTC-USD", "BTC", "USD")

	tests := []struct {
		name    string
		variant Variant
		live    models.LiveStats
		want    models.Liquidity
	}{
		{"long and short", Orderly, models.LiveStats{LongOpenInterest: float(12), ShortOpenInterest: float(8)}, models.Liquidity{Long: 12, Short: 8}},
		{"long only", Orderly, models.LiveStats{LongOpenInterest: float(12)}, models.Liquidity{Long: 12, Short: 24}},
		{"short only", Orderly, models.LiveStats{ShortOpenInterest: float(8)}, models.Liquidity{Long: 42, Short: 8}},
		{"even split", Dydx, models.LiveStats{OpenInterest: float(100)}, models.Liquidity{Long: 50, Short: 50}},
		{"weighted split", Hyperliquid, models.LiveStats{OpenInterest: float(100)}, models.Liquidity{Long: 30, Short: 70}},
		{"unknown", Dydx, models.LiveStats{}, placeholder},
		{"forced placeholder", Aevo, models.LiveStats{OpenInterest: float(100)}, placeholder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := New(tt.variant, Settings{Placeholder: placeholder}, logger)
			record := adapter.BuildRecord(entry, tt.live, fixedNow)
			assert.InDelta(t, tt.want.Long, record.Liquidity.Long, 1e-9)
			assert.InDelta(t, tt.want.Short, record.Liquidity.Short, 1e-9)
		})
	}
}

func paradexHandler(marketsHits *int32, marketsStatus *int32) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/markets", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(marketsHits, 1)
		if status := atomic.LoadInt32(marketsStatus); status != 0 {
			w.WriteHeader(int(status))
			return
		}
		writeJSON(w, `{"results":[
			{"symbol":"BTC-USD-PERP","asset_kind":"PERP","funding_period_hours":8,"chain_details":{"fee_maker":"0.0001","fee_taker":"0.0003"}},
			{"symbol":"ETH-USD-PERP","asset_kind":"PERP","funding_period_hours":"1"},
			{"symbol":"BTC-USD-100000-C","asset_kind":"PERP_OPTION"},
			{"symbol":"SOL-USD-PERP","asset_kind":"PERP"}
		]}`)
	})
	mux.HandleFunc("/v1/markets/summary", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("market") != "ALL" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, `{"results":[
			{"symbol":"BTC-USD-PERP","funding_rate":"0.0001","open_interest":"200"},
			{"symbol":"ETH-USD-PERP","funding_rate":"-0.00005","open_interest":null},
			{"symbol":"SOL-USD-PERP","funding_rate":""}
		]}`)
	})
	return mux
}

func TestCollectAll_Paradex(t *testing.T) {
	var hits, status int32
	adapter := newTestAdapter(t, Paradex, paradexHandler(&hits, &status), Settings{})

	collection, err := adapter.CollectAll(context.Background(), []string{"BTC", "ETH", "SOL"})
	require.NoError(t, err)

	assert.Empty(t, collection.Failures)
	assert.Equal(t, []models.CanonicalFundingRecord{
		{
			Exchange:        "paradex",
			Asset:           "BTC",
			Symbol:          "BTC-USD-PERP",
			FundingRate:     0.0001,
			NextFundingAtMs: fixedNow.Add(8 * time.Hour).UnixMilli(),
			Liquidity:       models.Liquidity{Long: 100, Short: 100},
			Fees:            models.Fees{Maker: 0.0001, Taker: 0.0003},
		},
		{
			Exchange:        "paradex",
			Asset:           "ETH",
			Symbol:          "ETH-USD-PERP",
			FundingRate:     -0.00005,
			NextFundingAtMs: fixedNow.Add(time.Hour).UnixMilli(),
			Liquidity:       models.Liquidity{Long: 1_000_000, Short: 1_000_000},
			Fees:            models.Fees{Maker: 0.0002, Taker: 0.0005},
		},
		{
			Exchange:        "paradex",
			Asset:           "SOL",
			Symbol:          "SOL-USD-PERP",
			FundingRate:     0,
			NextFundingAtMs: fixedNow.Add(8 * time.Hour).UnixMilli(),
			Liquidity:       models.Liquidity{Long: 1_000_000, Short: 1_000_000},
			Fees:            models.Fees{Maker: 0.0002, Taker: 0.0005},
		},
	}, collection.Records)
}

func TestCollectAll_UnparseableFundingRateDefaultsToZero(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/markets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"results":[{"symbol":"SOL-USD-PERP","asset_kind":"PERP"}]}`)
	})
	mux.HandleFunc("/v1/markets/summary", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"results":[{"symbol":"SOL-USD-PERP","funding_rate":"abc","open_interest":"10"}]}`)
	})
	adapter := newTestAdapter(t, Paradex, mux, Settings{})

	collection, err := adapter.CollectAll(context.Background(), []string{"SOL"})
	require.NoError(t, err)

	require.Len(t, collection.Records, 1)
	assert.Equal(t, "SOL-USD-PERP", collection.Records[0].Symbol)
	assert.Zero(t, collection.Records[0].FundingRate)
	assert.Equal(t, models.Liquidity{Long: 5, Short: 5}, collection.Records[0].Liquidity)
}

func TestCollectAll_CatalogIsCached(t *testing.T) {
	var hits, status int32
	adapter := newTestAdapter(t, Paradex, paradexHandler(&hits, &status), Settings{})

	_, err := adapter.CollectAll(context.Background(), []string{"BTC"})
	require.NoError(t, err)
	_, err = adapter.CollectAll(context.Background(), []string{"BTC"})
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, int64(1), adapter.CatalogStats().Hits)
}

func TestCollectAll_ServesStaleCatalogOnRefreshFailure(t *testing.T) {
	var hits, status int32
	adapter := newTestAdapter(t, Paradex, paradexHandler(&hits, &status), Settings{CatalogTTL: time.Nanosecond})

	_, err := adapter.CollectAll(context.Background(), []string{"BTC"})
	require.NoError(t, err)

	atomic.StoreInt32(&status, http.StatusBadGateway)
	time.Sleep(time.Millisecond)
	collection, err := adapter.CollectAll(context.Background(), []string{"BTC"})
	require.NoError(t, err)

	require.Len(t, collection.Records, 1)
	assert.Equal(t, "BTC-USD-PERP", collection.Records[0].Symbol)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, int64(1), adapter.CatalogStats().StaleServes)
}

func TestCollectAll_CatalogFailureAborts(t *testing.T) {
	var hits int32
	status := int32(http.StatusInternalServerError)
	adapter := newTestAdapter(t, Paradex, paradexHandler(&hits, &status), Settings{})

	_, err := adapter.CollectAll(context.Background(), []string{"BTC"})

	var httpErr *utils.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusInternalServerError, httpErr.StatusCode)
	assert.Contains(t, err.Error(), "paradex catalog")
}

func TestCollectAll_RetriesTransientFailures(t *testing.T) {
	var summaryHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/markets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"results":[{"symbol":"BTC-USD-PERP","asset_kind":"PERP"}]}`)
	})
	mux.HandleFunc("/v1/markets/summary", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&summaryHits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, `{"results":[{"symbol":"BTC-USD-PERP","funding_rate":0.0001}]}`)
	})
	adapter := newTestAdapter(t, Paradex, mux, Settings{Retries: 2, RetryBaseDelay: time.Millisecond})

	collection, err := adapter.CollectAll(context.Background(), []string{"BTC"})
	require.NoError(t, err)

	assert.Len(t, collection.Records, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&summaryHits))
}

func TestCollectAll_NoAllowedAssets(t *testing.T) {
	var hits, status int32
	adapter := newTestAdapter(t, Paradex, paradexHandler(&hits, &status), Settings{Debug: true})

	collection, err := adapter.CollectAll(context.Background(), []string{"DOGE"})
	require.NoError(t, err)
	assert.Empty(t, collection.Records)
}

func TestLookup(t *testing.T) {
	variant, ok := Lookup(" Hyperliquid ")
	require.True(t, ok)
	assert.Equal(t, "HL", variant.Prefix)

	_, ok = Lookup("binance")
	assert.False(t, ok)

	assert.Equal(t, []string{"aevo", "backpack", "dydx", "extended", "hyperliquid", "orderly", "paradex"}, Names())
}

func TestVariant_Defaults(t *testing.T) {
	defaults := Orderly.Defaults()
	assert.Equal(t, "ORDERLY", defaults.Prefix)
	assert.Equal(t, "https://api.orderly.org", defaults.BaseURL)
	assert.Equal(t, 10*time.Minute, defaults.MarketsCacheTTL)
	assert.Equal(t, []string{"USDC", "USD", "USDT"}, defaults.QuotePriority)
}
