package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/irfndi/funding-collector/internal/models"
)

// Extended publishes market stats inline with the market list.
var Extended = Variant{
	Name:          "extended",
	Prefix:        "EXTENDED",
	BaseURL:       "https://api.extended.exchange",
	Symbols:       SymbolConvention{Separators: "-", AllPerp: true},
	QuotePriority: []string{"USD", "USDC", "USDT"},
	FundingPeriod: 8 * time.Hour,
	CatalogTTL:    time.Minute,
	Fees:          models.Fees{Maker: 0.0002, Taker: 0.0005},
	LongShare:     0.5,
	Catalog:       extendedCatalog,
	LiveStats:     extendedLiveStats,
}

const extendedMarketsPath = "/api/v1/info/markets"

type extendedMarketsResponse struct {
	Data []struct {
		Name        string `json:"name"`
		Active      *bool  `json:"active"`
		MarketStats *struct {
			FundingRate     Number    `json:"fundingRate"`
			NextFundingRate Number    `json:"nextFundingRate"`
			NextFundingTime Timestamp `json:"nextFundingTime"`
			OpenInterest    Number    `json:"openInterest"`
		} `json:"marketStats"`
	} `json:"data"`
}

func extendedCatalog(ctx context.Context, s *Session) ([]models.MarketCatalogEntry, error) {
	var resp extendedMarketsResponse
	if err := s.Get(ctx, "markets", extendedMarketsPath, nil, &resp); err != nil {
		return nil, err
	}

	entries := make([]models.MarketCatalogEntry, 0, len(resp.Data))
	for _, market := range resp.Data {
		if market.Active != nil && !*market.Active {
			continue
		}
		if entry, ok := s.Entry(market.Name, models.MarketMeta{}); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func extendedLiveStats(ctx context.Context, s *Session, _ []models.MarketCatalogEntry) (LiveSnapshot, error) {
	var resp extendedMarketsResponse
	if err := s.Get(ctx, "market stats", extendedMarketsPath, nil, &resp); err != nil {
		return LiveSnapshot{}, err
	}

	stats := make(map[string]models.LiveStats, len(resp.Data))
	for _, market := range resp.Data {
		if market.Name == "" || market.MarketStats == nil {
			continue
		}
		ms := market.MarketStats
		rate := FirstNumber(ms.FundingRate, ms.NextFundingRate)
		stats[strings.ToUpper(market.Name)] = models.LiveStats{
			FundingRate:     rate.Or(0),
			NextFundingAtMs: ms.NextFundingTime.Ms,
			OpenInterest:    ms.OpenInterest.Ptr(),
		}
	}
	return LiveSnapshot{Stats: stats}, nil
}
