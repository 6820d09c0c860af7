package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/irfndi/funding-collector/internal/cache"
	"github.com/irfndi/funding-collector/internal/config"
	"github.com/irfndi/funding-collector/internal/models"
	"github.com/irfndi/funding-collector/internal/telemetry"
	"github.com/irfndi/funding-collector/pkg/httpclient"
)

const (
	tracerName  = "github.com/irfndi/funding-collector/pkg/exchange"
	catalogKey  = "markets"
	debugSample = 10
)

// Adapter is the capability set every exchange exposes.
type Adapter interface {
	Name() string
	ListCanonicalMarkets(ctx context.Context) ([]models.MarketCatalogEntry, error)
	FetchLiveStats(ctx context.Context, catalog []models.MarketCatalogEntry) (LiveSnapshot, error)
	SelectWinners(catalog []models.MarketCatalogEntry, live map[string]models.LiveStats, allowed []string) []models.Winner
	BuildRecord(entry models.MarketCatalogEntry, live models.LiveStats, now time.Time) models.CanonicalFundingRecord
	CollectAll(ctx context.Context, allowed []string) (Collection, error)
}

// AssetFailure is a per-instrument error that did not abort the cycle.
type AssetFailure struct {
	Asset  string
	Symbol string
	Err    error
}

// LiveSnapshot holds live stats keyed by symbol plus any per-instrument failures.
type LiveSnapshot struct {
	Stats    map[string]models.LiveStats
	Failures []AssetFailure
}

// Collection is the output of one adapter cycle.
type Collection struct {
	Records  []models.CanonicalFundingRecord
	Failures []AssetFailure
}

// Settings are the resolved per-process knobs for an adapter.
type Settings struct {
	BaseURL        string
	Timeout        time.Duration
	Retries        int
	RetryBaseDelay time.Duration
	CatalogTTL     time.Duration
	QuotePriority  []string
	MaxConcurrency int
	RateLimit      float64
	UserAgent      string
	Debug          bool
	Placeholder    models.Liquidity
}

// SettingsFromConfig maps the loaded configuration onto adapter settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		BaseURL:        cfg.Exchange.BaseURL,
		Timeout:        cfg.Exchange.Timeout(),
		Retries:        cfg.Exchange.Retries,
		RetryBaseDelay: cfg.Exchange.RetryBaseDelay(),
		CatalogTTL:     cfg.Exchange.MarketsCacheTTL(),
		QuotePriority:  cfg.Exchange.QuotePriority,
		MaxConcurrency: cfg.Exchange.MaxConcurrency,
		RateLimit:      cfg.Exchange.RateLimitRPS,
		UserAgent:      cfg.Exchange.UserAgent,
		Debug:          cfg.Exchange.Debug,
		Placeholder: models.Liquidity{
			Long:  cfg.Liquidity.PlaceholderLong,
			Short: cfg.Liquidity.PlaceholderShort,
		},
	}
}

// MarketAdapter implements Adapter for any Variant.
type MarketAdapter struct {
	variant  Variant
	settings Settings
	session  *Session
	catalog  *cache.TTLCache[[]models.MarketCatalogEntry]
	logger   *logrus.Entry
	now      func() time.Time
}

// New creates an adapter for variant. Zero-valued settings fall back to the variant defaults.
func New(variant Variant, settings Settings, logger *logrus.Logger) *MarketAdapter {
	if settings.BaseURL == "" {
		settings.BaseURL = variant.BaseURL
	}
	if len(settings.QuotePriority) == 0 {
		settings.QuotePriority = variant.QuotePriority
	}
	if settings.CatalogTTL <= 0 {
		settings.CatalogTTL = variant.CatalogTTL
	}
	if settings.MaxConcurrency < 1 {
		settings.MaxConcurrency = 1
	}
	if settings.Timeout <= 0 {
		settings.Timeout = httpclient.DefaultTimeout
	}
	if settings.Placeholder == (models.Liquidity{}) {
		settings.Placeholder = models.Liquidity{Long: 1_000_000, Short: 1_000_000}
	}

	entry := logger.WithField("exchange", variant.Name)
	a := &MarketAdapter{
		variant:  variant,
		settings: settings,
		catalog:  cache.NewTTLCache[[]models.MarketCatalogEntry](logger),
		logger:   entry,
		now:      time.Now,
	}
	a.session = &Session{
		variant: &a.variant,
		client: httpclient.NewClient(httpclient.Options{
			UserAgent: settings.UserAgent,
			RateLimit: settings.RateLimit,
			Logger:    logger,
		}),
		baseURL: settings.BaseURL,
		timeout: settings.Timeout,
		retry: httpclient.RetryPolicy{
			Retries:   settings.Retries,
			BaseDelay: settings.RetryBaseDelay,
			Factor:    httpclient.DefaultFactor,
		},
		maxConcurrency: settings.MaxConcurrency,
		logger:         entry,
	}
	return a
}

// Name returns the exchange name.
func (a *MarketAdapter) Name() string {
	return a.variant.Name
}

// CatalogStats exposes the market catalog cache counters.
func (a *MarketAdapter) CatalogStats() cache.Stats {
	return a.catalog.GetStats()
}

// ListCanonicalMarkets returns the perpetual markets, served from the catalog cache while fresh.
func (a *MarketAdapter) ListCanonicalMarkets(ctx context.Context) ([]models.MarketCatalogEntry, error) {
	entries, err := a.catalog.GetOrFetch(ctx, catalogKey, a.settings.CatalogTTL, func(ctx context.Context) ([]models.MarketCatalogEntry, error) {
		return a.variant.Catalog(ctx, a.session)
	})
	if err != nil {
		return nil, err
	}

	perps := make([]models.MarketCatalogEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsPerp && entry.Base != "" {
			perps = append(perps, entry)
		}
	}
	return perps, nil
}

// FetchLiveStats fetches funding figures for catalog.
func (a *MarketAdapter) FetchLiveStats(ctx context.Context, catalog []models.MarketCatalogEntry) (LiveSnapshot, error) {
	snapshot, err := a.variant.LiveStats(ctx, a.session, catalog)
	if err != nil {
		return LiveSnapshot{}, err
	}
	if snapshot.Stats == nil {
		snapshot.Stats = make(map[string]models.LiveStats)
	}
	return snapshot, nil
}

// SelectWinners applies winner selection with this adapter's quote priority.
func (a *MarketAdapter) SelectWinners(catalog []models.MarketCatalogEntry, live map[string]models.LiveStats, allowed []string) []models.Winner {
	return SelectWinners(catalog, live, allowed, a.settings.QuotePriority)
}

// BuildRecord assembles the canonical record for one market.
func (a *MarketAdapter) BuildRecord(entry models.MarketCatalogEntry, live models.LiveStats, now time.Time) models.CanonicalFundingRecord {
	next := int64(0)
	if live.NextFundingAtMs > 0 {
		next = NormalizeToMs(live.NextFundingAtMs)
	} else {
		period := entry.Meta.FundingPeriod
		if period <= 0 {
			period = a.variant.FundingPeriod
		}
		next = now.Add(period).UnixMilli()
	}

	fees := a.variant.Fees
	if entry.Meta.MakerFee != nil {
		fees.Maker = *entry.Meta.MakerFee
	}
	if entry.Meta.TakerFee != nil {
		fees.Taker = *entry.Meta.TakerFee
	}

	return models.CanonicalFundingRecord{
		Exchange:        a.variant.Name,
		Asset:           entry.Base,
		Symbol:          entry.Symbol,
		FundingRate:     finite(live.FundingRate),
		NextFundingAtMs: next,
		Liquidity:       a.liquidity(live),
		Fees:            fees,
	}
}

func (a *MarketAdapter) liquidity(live models.LiveStats) models.Liquidity {
	if a.variant.PlaceholderLiquidity {
		return a.settings.Placeholder
	}
	if live.LongOpenInterest != nil || live.ShortOpenInterest != nil {
		liquidity := a.settings.Placeholder
		if live.LongOpenInterest != nil {
			liquidity.Long = finite(*live.LongOpenInterest)
		}
		if live.ShortOpenInterest != nil {
			liquidity.Short = finite(*live.ShortOpenInterest)
		}
		return liquidity
	}
	if live.OpenInterest != nil {
		share := a.variant.LongShare
		if share <= 0 || share >= 1 {
			share = 0.5
		}
		oi := finite(*live.OpenInterest)
		return models.Liquidity{Long: oi * share, Short: oi * (1 - share)}
	}
	return a.settings.Placeholder
}

// CollectAll runs catalog, live stats, winner selection and record building.
// Catalog and live-stat errors abort the cycle; per-instrument failures are
// returned in the collection.
func (a *MarketAdapter) CollectAll(ctx context.Context, allowed []string) (Collection, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "exchange.collect",
		attribute.String("exchange", a.variant.Name),
		attribute.Int("allowed_assets", len(allowed)),
	)
	defer span.End()

	catalog, err := a.ListCanonicalMarkets(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return Collection{}, fmt.Errorf("%s catalog: %w", a.variant.Name, err)
	}

	candidates := FilterAllowed(catalog, allowed)
	snapshot, err := a.FetchLiveStats(ctx, candidates)
	if err != nil {
		telemetry.RecordError(span, err)
		return Collection{}, fmt.Errorf("%s live stats: %w", a.variant.Name, err)
	}

	winners := a.SelectWinners(candidates, snapshot.Stats, allowed)
	if len(winners) == 0 {
		a.logNoWinners(catalog, allowed)
	}

	bySymbol := make(map[string]models.MarketCatalogEntry, len(candidates))
	for _, entry := range candidates {
		bySymbol[entry.Symbol] = entry
	}

	now := a.now()
	records := make([]models.CanonicalFundingRecord, 0, len(winners))
	for _, winner := range winners {
		records = append(records, a.BuildRecord(bySymbol[winner.Symbol], snapshot.Stats[winner.Symbol], now))
	}

	span.SetAttributes(
		attribute.Int("catalog_size", len(catalog)),
		attribute.Int("records", len(records)),
		attribute.Int("failures", len(snapshot.Failures)),
	)
	return Collection{Records: records, Failures: snapshot.Failures}, nil
}

func (a *MarketAdapter) logNoWinners(catalog []models.MarketCatalogEntry, allowed []string) {
	fields := logrus.Fields{
		"allowed":      allowed,
		"catalog_size": len(catalog),
	}
	if !a.settings.Debug {
		a.logger.WithFields(fields).Debug("No markets matched the allowlist")
		return
	}
	sample := make([]string, 0, debugSample)
	for _, entry := range catalog {
		if len(sample) == debugSample {
			break
		}
		sample = append(sample, entry.Symbol)
	}
	fields["sample"] = sample
	a.logger.WithFields(fields).Info("No markets matched the allowlist")
}
