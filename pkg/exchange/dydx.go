package exchange

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/irfndi/funding-collector/internal/models"
	"github.com/irfndi/funding-collector/internal/utils"
)

// Dydx reads both the catalog and live stats from the indexer's perpetualMarkets map.
var Dydx = Variant{
	Name:          "dydx",
	Prefix:        "DYDX",
	BaseURL:       "https://indexer.dydx.trade",
	Symbols:       SymbolConvention{Separators: "-", AllPerp: true},
	QuotePriority: []string{"USD", "USDC", "USDT"},
	FundingPeriod: 8 * time.Hour,
	CatalogTTL:    10 * time.Minute,
	Fees:          models.Fees{Maker: 0.0002, Taker: 0.0005},
	LongShare:     0.5,
	Catalog:       dydxCatalog,
	LiveStats:     dydxLiveStats,
}

const dydxMarketsPath = "/v4/perpetualMarkets"

type dydxMarket struct {
	Ticker          string    `json:"ticker"`
	Status          string    `json:"status"`
	NextFundingRate Number    `json:"nextFundingRate"`
	FundingRate     Number    `json:"fundingRate"`
	OpenInterest    Number    `json:"openInterest"`
	NextFundingTime Timestamp `json:"nextFundingTime"`
	NextFundingAt   Timestamp `json:"nextFundingAt"`
	NextFunding     *struct {
		Time Timestamp `json:"time"`
	} `json:"nextFunding"`
}

func (m dydxMarket) nextFunding() int64 {
	nested := Timestamp{}
	if m.NextFunding != nil {
		nested = m.NextFunding.Time
	}
	ms, _ := First(m.NextFundingTime, nested, m.NextFundingAt)
	return ms
}

func fetchDydxMarkets(ctx context.Context, s *Session, label string) (map[string]dydxMarket, error) {
	var resp struct {
		Markets json.RawMessage `json:"markets"`
	}
	if err := s.Get(ctx, label, dydxMarketsPath, nil, &resp); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(string(resp.Markets))
	if !strings.HasPrefix(trimmed, "{") {
		return nil, utils.NewShapeError("dydx "+label, "markets is not an object", resp.Markets)
	}
	var markets map[string]dydxMarket
	if err := json.Unmarshal(resp.Markets, &markets); err != nil {
		return nil, utils.NewShapeError("dydx "+label, err.Error(), resp.Markets)
	}
	return markets, nil
}

func dydxCatalog(ctx context.Context, s *Session) ([]models.MarketCatalogEntry, error) {
	markets, err := fetchDydxMarkets(ctx, s, "markets")
	if err != nil {
		return nil, err
	}

	entries := make([]models.MarketCatalogEntry, 0, len(markets))
	for symbol, market := range markets {
		if market.Status != "" && !strings.EqualFold(market.Status, "ACTIVE") {
			continue
		}
		if entry, ok := s.Entry(symbol, models.MarketMeta{}); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func dydxLiveStats(ctx context.Context, s *Session, _ []models.MarketCatalogEntry) (LiveSnapshot, error) {
	markets, err := fetchDydxMarkets(ctx, s, "live markets")
	if err != nil {
		return LiveSnapshot{}, err
	}

	stats := make(map[string]models.LiveStats, len(markets))
	for symbol, market := range markets {
		rate := FirstNumber(market.NextFundingRate, market.FundingRate)
		stats[strings.ToUpper(symbol)] = models.LiveStats{
			FundingRate:     rate.Or(0),
			NextFundingAtMs: market.nextFunding(),
			OpenInterest:    market.OpenInterest.Ptr(),
		}
	}
	return LiveSnapshot{Stats: stats}, nil
}
