package exchange

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/funding-collector/internal/models"
	"github.com/irfndi/funding-collector/internal/utils"
	"github.com/irfndi/funding-collector/internal/workerpool"
	"github.com/irfndi/funding-collector/pkg/httpclient"
)

// Aevo has no batched funding endpoint, so live stats are fetched per instrument.
var Aevo = Variant{
	Name:                 "aevo",
	Prefix:               "AEVO",
	BaseURL:              "https://api.aevo.xyz",
	Symbols:              SymbolConvention{Separators: "-_", PerpMarker: "PERP", StripSuffix: true},
	QuotePriority:        []string{"USD", "USDC", "USDT"},
	FundingPeriod:        time.Hour,
	CatalogTTL:           time.Minute,
	Fees:                 models.Fees{Maker: 0.0005, Taker: 0.0008},
	PlaceholderLiquidity: true,
	Catalog:              aevoCatalog,
	LiveStats:            aevoLiveStats,
}

type aevoMarket struct {
	InstrumentName string `json:"instrument_name"`
	Instrument     string `json:"instrument"`
	Symbol         string `json:"symbol"`
	Name           string `json:"name"`
	InstrumentType string `json:"instrument_type"`
	IsActive       *bool  `json:"is_active"`
}

func (m aevoMarket) name() string {
	for _, candidate := range []string{m.InstrumentName, m.Instrument, m.Symbol, m.Name} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

type aevoFundingResponse struct {
	FundingRate      Number `json:"funding_rate"`
	FundingRateCamel Number `json:"fundingRate"`
	Data             *struct {
		FundingRate Number `json:"funding_rate"`
	} `json:"data"`
}

func (r aevoFundingResponse) rate() Number {
	nested := Number{}
	if r.Data != nil {
		nested = r.Data.FundingRate
	}
	return FirstNumber(r.FundingRate, r.FundingRateCamel, nested)
}

func aevoCatalog(ctx context.Context, s *Session) ([]models.MarketCatalogEntry, error) {
	raw, err := s.Fetch(ctx, "markets", "/markets", httpclient.RequestOptions{})
	if err != nil {
		return nil, err
	}
	markets, err := decodeAevoMarkets(raw)
	if err != nil {
		return nil, err
	}

	entries := make([]models.MarketCatalogEntry, 0, len(markets))
	for _, market := range markets {
		name := market.name()
		if !strings.Contains(strings.ToUpper(name), "PERP") {
			continue
		}
		if market.IsActive != nil && !*market.IsActive {
			continue
		}
		if entry, ok := s.Entry(name, models.MarketMeta{}); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// decodeAevoMarkets accepts a bare array or an object wrapping it in "markets" or "data".
func decodeAevoMarkets(raw []byte) ([]aevoMarket, error) {
	var markets []aevoMarket
	if err := json.Unmarshal(raw, &markets); err == nil {
		return markets, nil
	}

	var wrapped struct {
		Markets []aevoMarket `json:"markets"`
		Data    []aevoMarket `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, utils.NewShapeError("aevo markets", "expected an array of markets", raw)
	}
	if wrapped.Markets != nil {
		return wrapped.Markets, nil
	}
	return wrapped.Data, nil
}

func aevoLiveStats(ctx context.Context, s *Session, catalog []models.MarketCatalogEntry) (LiveSnapshot, error) {
	tasks := make([]workerpool.Task[models.LiveStats], len(catalog))
	for i, entry := range catalog {
		tasks[i] = func(ctx context.Context) (models.LiveStats, error) {
			var resp aevoFundingResponse
			query := url.Values{"instrument_name": []string{entry.Symbol}}
			if err := s.Get(ctx, "funding "+entry.Symbol, "/funding", query, &resp); err != nil {
				return models.LiveStats{}, err
			}
			return models.LiveStats{FundingRate: resp.rate().Or(0)}, nil
		}
	}

	results := workerpool.RunLimited(ctx, tasks, s.MaxConcurrency())

	snapshot := LiveSnapshot{Stats: make(map[string]models.LiveStats, len(results))}
	for i, result := range results {
		entry := catalog[i]
		if result.Err != nil {
			snapshot.Failures = append(snapshot.Failures, AssetFailure{Asset: entry.Base, Symbol: entry.Symbol, Err: result.Err})
			s.Logger().WithFields(logrus.Fields{
				"asset":  entry.Base,
				"symbol": entry.Symbol,
				"error":  result.Err.Error(),
			}).Warn("Funding fetch failed for instrument")
			continue
		}
		snapshot.Stats[entry.Symbol] = result.Value
	}
	return snapshot, nil
}
