package exchange

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/irfndi/funding-collector/internal/models"
)

// Orderly prefixes perps with PERP_ and reports long and short open interest separately.
var Orderly = Variant{
	Name:          "orderly",
	Prefix:        "ORDERLY",
	BaseURL:       "https://api.orderly.org",
	Symbols:       SymbolConvention{Prefix: "PERP_", Separators: "_"},
	QuotePriority: []string{"USDC", "USD", "USDT"},
	FundingPeriod: 8 * time.Hour,
	CatalogTTL:    10 * time.Minute,
	Fees:          models.Fees{Maker: 0.0002, Taker: 0.0005},
	LongShare:     0.5,
	Catalog:       orderlyCatalog,
	LiveStats:     orderlyLiveStats,
}

type orderlyRows[T any] struct {
	Data struct {
		Rows []T `json:"rows"`
	} `json:"data"`
}

type orderlyInfo struct {
	Symbol        string `json:"symbol"`
	FundingPeriod Number `json:"funding_period"`
}

type orderlyFunding struct {
	Symbol          string    `json:"symbol"`
	EstFundingRate  Number    `json:"est_funding_rate"`
	LastFundingRate Number    `json:"last_funding_rate"`
	NextFundingTime Timestamp `json:"next_funding_time"`
}

type orderlyOpenInterest struct {
	Symbol  string `json:"symbol"`
	LongOI  Number `json:"long_oi"`
	ShortOI Number `json:"short_oi"`
}

func orderlyCatalog(ctx context.Context, s *Session) ([]models.MarketCatalogEntry, error) {
	var resp orderlyRows[orderlyInfo]
	if err := s.Get(ctx, "info", "/v1/public/info", nil, &resp); err != nil {
		return nil, err
	}

	entries := make([]models.MarketCatalogEntry, 0, len(resp.Data.Rows))
	for _, row := range resp.Data.Rows {
		meta := models.MarketMeta{}
		if hours := row.FundingPeriod.Or(0); hours > 0 {
			meta.FundingPeriod = time.Duration(hours * float64(time.Hour))
		}
		if entry, ok := s.Entry(row.Symbol, meta); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func orderlyLiveStats(ctx context.Context, s *Session, _ []models.MarketCatalogEntry) (LiveSnapshot, error) {
	var (
		funding   orderlyRows[orderlyFunding]
		interests orderlyRows[orderlyOpenInterest]
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Get(gctx, "funding rates", "/v1/public/funding_rates", nil, &funding)
	})
	g.Go(func() error {
		return s.Get(gctx, "open interest", "/v1/public/market_info/traders_open_interests", nil, &interests)
	})
	if err := g.Wait(); err != nil {
		return LiveSnapshot{}, err
	}

	oiBySymbol := make(map[string]orderlyOpenInterest, len(interests.Data.Rows))
	for _, row := range interests.Data.Rows {
		oiBySymbol[strings.ToUpper(row.Symbol)] = row
	}

	stats := make(map[string]models.LiveStats, len(funding.Data.Rows))
	for _, row := range funding.Data.Rows {
		rate := FirstNumber(row.EstFundingRate, row.LastFundingRate)
		if row.Symbol == "" {
			continue
		}
		symbol := strings.ToUpper(row.Symbol)
		live := models.LiveStats{
			FundingRate:     rate.Or(0),
			NextFundingAtMs: row.NextFundingTime.Ms,
		}
		if oi, ok := oiBySymbol[symbol]; ok {
			live.LongOpenInterest = oi.LongOI.Ptr()
			live.ShortOpenInterest = oi.ShortOI.Ptr()
		}
		stats[symbol] = live
	}
	return LiveSnapshot{Stats: stats}, nil
}
