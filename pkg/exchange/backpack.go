package exchange

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/irfndi/funding-collector/internal/models"
)

// Backpack spells perps as SOL_USDC_PERP and splits funding and open interest
// across two endpoints.
var Backpack = Variant{
	Name:          "backpack",
	Prefix:        "BACKPACK",
	BaseURL:       "https://api.backpack.exchange",
	Symbols:       SymbolConvention{Separators: "_-", PerpMarker: "PERP"},
	QuotePriority: []string{"USDC", "USD", "USDT"},
	FundingPeriod: 8 * time.Hour,
	CatalogTTL:    10 * time.Minute,
	Fees:          models.Fees{Maker: 0.0002, Taker: 0.0005},
	LongShare:     0.5,
	Catalog:       backpackCatalog,
	LiveStats:     backpackLiveStats,
}

type backpackMarket struct {
	Symbol     string `json:"symbol"`
	MarketType string `json:"marketType"`
}

type backpackMarkPrice struct {
	Symbol               string    `json:"symbol"`
	FundingRate          Number    `json:"fundingRate"`
	NextFundingTimestamp Timestamp `json:"nextFundingTimestamp"`
}

type backpackOpenInterest struct {
	Symbol       string `json:"symbol"`
	OpenInterest Number `json:"openInterest"`
}

func backpackCatalog(ctx context.Context, s *Session) ([]models.MarketCatalogEntry, error) {
	var markets []backpackMarket
	if err := s.Get(ctx, "markets", "/api/v1/markets", nil, &markets); err != nil {
		return nil, err
	}

	entries := make([]models.MarketCatalogEntry, 0, len(markets))
	for _, market := range markets {
		if market.MarketType != "" && !strings.EqualFold(market.MarketType, "PERP") {
			continue
		}
		if entry, ok := s.Entry(market.Symbol, models.MarketMeta{}); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func backpackLiveStats(ctx context.Context, s *Session, _ []models.MarketCatalogEntry) (LiveSnapshot, error) {
	var (
		prices    []backpackMarkPrice
		interests []backpackOpenInterest
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Get(gctx, "mark prices", "/api/v1/markPrices", nil, &prices)
	})
	g.Go(func() error {
		return s.Get(gctx, "open interest", "/api/v1/openInterest", nil, &interests)
	})
	if err := g.Wait(); err != nil {
		return LiveSnapshot{}, err
	}

	oiBySymbol := make(map[string]Number, len(interests))
	for _, row := range interests {
		oiBySymbol[strings.ToUpper(row.Symbol)] = row.OpenInterest
	}

	stats := make(map[string]models.LiveStats, len(prices))
	for _, row := range prices {
		if row.Symbol == "" {
			continue
		}
		symbol := strings.ToUpper(row.Symbol)
		stats[symbol] = models.LiveStats{
			FundingRate:     row.FundingRate.Or(0),
			NextFundingAtMs: row.NextFundingTimestamp.Ms,
			OpenInterest:    oiBySymbol[symbol].Ptr(),
		}
	}
	return LiveSnapshot{Stats: stats}, nil
}
