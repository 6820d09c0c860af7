package exchange

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/irfndi/funding-collector/internal/models"
)

// Paradex lists BTC-USD-PERP style markets with a per-market funding period.
var Paradex = Variant{
	Name:          "paradex",
	Prefix:        "PARADEX",
	BaseURL:       "https://api.prod.paradex.trade",
	Symbols:       SymbolConvention{Separators: "-", PerpMarker: "PERP"},
	QuotePriority: []string{"USD", "USDC", "USDT"},
	FundingPeriod: 8 * time.Hour,
	CatalogTTL:    10 * time.Minute,
	Fees:          models.Fees{Maker: 0.0002, Taker: 0.0005},
	LongShare:     0.5,
	Catalog:       paradexCatalog,
	LiveStats:     paradexLiveStats,
}

type paradexMarketsResponse struct {
	Results []struct {
		Symbol             string `json:"symbol"`
		AssetKind          string `json:"asset_kind"`
		FundingPeriodHours Number `json:"funding_period_hours"`
		ChainDetails       *struct {
			FeeMaker Number `json:"fee_maker"`
			FeeTaker Number `json:"fee_taker"`
		} `json:"chain_details"`
	} `json:"results"`
}

type paradexSummaryResponse struct {
	Results []struct {
		Symbol       string `json:"symbol"`
		FundingRate  Number `json:"funding_rate"`
		OpenInterest Number `json:"open_interest"`
	} `json:"results"`
}

func paradexCatalog(ctx context.Context, s *Session) ([]models.MarketCatalogEntry, error) {
	var resp paradexMarketsResponse
	if err := s.Get(ctx, "markets", "/v1/markets", nil, &resp); err != nil {
		return nil, err
	}

	entries := make([]models.MarketCatalogEntry, 0, len(resp.Results))
	for _, market := range resp.Results {
		if market.AssetKind != "" && !strings.EqualFold(market.AssetKind, "PERP") {
			continue
		}
		meta := models.MarketMeta{}
		if hours := market.FundingPeriodHours.Or(0); hours > 0 {
			meta.FundingPeriod = time.Duration(hours * float64(time.Hour))
		}
		if market.ChainDetails != nil {
			meta.MakerFee = market.ChainDetails.FeeMaker.Ptr()
			meta.TakerFee = market.ChainDetails.FeeTaker.Ptr()
		}
		if entry, ok := s.Entry(market.Symbol, meta); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func paradexLiveStats(ctx context.Context, s *Session, _ []models.MarketCatalogEntry) (LiveSnapshot, error) {
	var resp paradexSummaryResponse
	query := url.Values{"market": []string{"ALL"}}
	if err := s.Get(ctx, "markets summary", "/v1/markets/summary", query, &resp); err != nil {
		return LiveSnapshot{}, err
	}

	stats := make(map[string]models.LiveStats, len(resp.Results))
	for _, row := range resp.Results {
		if row.Symbol == "" {
			continue
		}
		stats[strings.ToUpper(row.Symbol)] = models.LiveStats{
			FundingRate:  row.FundingRate.Or(0),
			OpenInterest: row.OpenInterest.Ptr(),
		}
	}
	return LiveSnapshot{Stats: stats}, nil
}
