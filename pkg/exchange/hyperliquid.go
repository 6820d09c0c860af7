package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/irfndi/funding-collector/internal/models"
	"github.com/irfndi/funding-collector/internal/utils"
)

// Hyperliquid exposes every perp as a bare coin name through its POST /info endpoint.
var Hyperliquid = Variant{
	Name:          "hyperliquid",
	Prefix:        "HL",
	BaseURL:       "https://api.hyperliquid.xyz",
	Symbols:       SymbolConvention{Bare: true, BareQuote: "USD"},
	QuotePriority: []string{"USD"},
	FundingPeriod: 8 * time.Hour,
	CatalogTTL:    0,
	Fees:          models.Fees{Maker: -0.00005, Taker: 0.0003},
	LongShare:     0.3,
	Catalog:       hyperliquidCatalog,
	LiveStats:     hyperliquidLiveStats,
}

type hyperliquidMeta struct {
	Universe []struct {
		Name       string `json:"name"`
		IsDelisted bool   `json:"isDelisted"`
	} `json:"universe"`
}

type hyperliquidAssetCtx struct {
	Funding      Number `json:"funding"`
	OpenInterest Number `json:"openInterest"`
}

func hyperliquidCatalog(ctx context.Context, s *Session) ([]models.MarketCatalogEntry, error) {
	var meta hyperliquidMeta
	if err := s.Post(ctx, "meta", "/info", map[string]string{"type": "meta"}, &meta); err != nil {
		return nil, err
	}

	entries := make([]models.MarketCatalogEntry, 0, len(meta.Universe))
	for _, asset := range meta.Universe {
		if asset.IsDelisted {
			continue
		}
		if entry, ok := s.Entry(asset.Name, models.MarketMeta{}); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func hyperliquidLiveStats(ctx context.Context, s *Session, _ []models.MarketCatalogEntry) (LiveSnapshot, error) {
	const label = "hyperliquid metaAndAssetCtxs"

	var parts []json.RawMessage
	if err := s.Post(ctx, "metaAndAssetCtxs", "/info", map[string]string{"type": "metaAndAssetCtxs"}, &parts); err != nil {
		return LiveSnapshot{}, err
	}
	if len(parts) < 2 {
		return LiveSnapshot{}, utils.NewShapeError(label, fmt.Sprintf("expected [meta, ctxs], got %d elements", len(parts)), joinRaw(parts))
	}

	var meta hyperliquidMeta
	if err := json.Unmarshal(parts[0], &meta); err != nil {
		return LiveSnapshot{}, utils.NewShapeError(label, "meta: "+err.Error(), parts[0])
	}
	var ctxs []hyperliquidAssetCtx
	if err := json.Unmarshal(parts[1], &ctxs); err != nil {
		return LiveSnapshot{}, utils.NewShapeError(label, "asset contexts: "+err.Error(), parts[1])
	}
	if len(meta.Universe) != len(ctxs) {
		return LiveSnapshot{}, utils.NewShapeError(label,
			fmt.Sprintf("universe has %d names but %d contexts", len(meta.Universe), len(ctxs)), parts[1])
	}

	stats := make(map[string]models.LiveStats, len(ctxs))
	for i, asset := range meta.Universe {
		if asset.Name == "" {
			continue
		}
		stats[strings.ToUpper(asset.Name)] = models.LiveStats{
			FundingRate:  ctxs[i].Funding.Or(0),
			OpenInterest: ctxs[i].OpenInterest.Ptr(),
		}
	}
	return LiveSnapshot{Stats: stats}, nil
}

func joinRaw(parts []json.RawMessage) []byte {
	data, _ := json.Marshal(parts)
	return data
}
