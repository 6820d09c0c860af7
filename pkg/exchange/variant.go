package exchange

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/irfndi/funding-collector/internal/config"
	"github.com/irfndi/funding-collector/internal/models"
)

// CatalogFunc lists an exchange's markets.
type CatalogFunc func(ctx context.Context, s *Session) ([]models.MarketCatalogEntry, error)

// LiveStatsFunc fetches current funding figures for the given markets.
type LiveStatsFunc func(ctx context.Context, s *Session, catalog []models.MarketCatalogEntry) (LiveSnapshot, error)

// Variant is the strategy data that turns the shared adapter into one exchange.
type Variant struct {
	Name          string
	Prefix        string
	BaseURL       string
	Symbols       SymbolConvention
	QuotePriority []string
	FundingPeriod time.Duration
	CatalogTTL    time.Duration
	Fees          models.Fees
	// LongShare splits a single open interest figure into long/short liquidity.
	// Zero means an even split.
	LongShare float64
	// PlaceholderLiquidity forces the configured placeholder even when OI is known.
	PlaceholderLiquidity bool

	Catalog   CatalogFunc
	LiveStats LiveStatsFunc
}

// Defaults returns the configuration fallbacks for this variant.
func (v Variant) Defaults() config.ExchangeDefaults {
	return config.ExchangeDefaults{
		Prefix:          v.Prefix,
		BaseURL:         v.BaseURL,
		MarketsCacheTTL: v.CatalogTTL,
		QuotePriority:   append([]string(nil), v.QuotePriority...),
	}
}

// ParseSymbol splits symbol using this variant's convention.
func (v Variant) ParseSymbol(symbol string) ParsedSymbol {
	return v.Symbols.Parse(symbol)
}

func (v *Variant) entry(symbol string, meta models.MarketMeta) (models.MarketCatalogEntry, bool) {
	parsed := v.Symbols.Parse(symbol)
	if parsed.Base == "" {
		return models.MarketCatalogEntry{}, false
	}
	return models.MarketCatalogEntry{
		Symbol: strings.ToUpper(strings.TrimSpace(symbol)),
		Base:   parsed.Base,
		Quote:  parsed.Quote,
		IsPerp: parsed.IsPerp,
		Meta:   meta,
	}, true
}

var registry = map[string]Variant{
	Paradex.Name:     Paradex,
	Hyperliquid.Name: Hyperliquid,
	Aevo.Name:        Aevo,
	Backpack.Name:    Backpack,
	Dydx.Name:        Dydx,
	Extended.Name:    Extended,
	Orderly.Name:     Orderly,
}

// Lookup finds a variant by case-insensitive name.
func Lookup(name string) (Variant, bool) {
	v, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	return v, ok
}

// Names lists the supported exchanges in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
