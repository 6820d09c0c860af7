package exchange

import (
	"sort"
	"strings"

	"github.com/irfndi/funding-collector/internal/models"
)

// QuoteRank scores quote by its position in priority: the first entry scores
// len(priority), the last scores 1 and unlisted quotes score 0.
func QuoteRank(quote string, priority []string) int {
	for i, candidate := range priority {
		if strings.EqualFold(candidate, quote) {
			return len(priority) - i
		}
	}
	return 0
}

// SelectWinners picks one market per allowed base asset. Candidates are ranked
// by quote priority, then by open interest, then by the lexicographically
// smaller symbol, so the outcome depends only on the inputs. Assets without
// live stats are dropped. The result is sorted by asset.
func SelectWinners(catalog []models.MarketCatalogEntry, live map[string]models.LiveStats, allowed []string, quotePriority []string) []models.Winner {
	allowedSet := assetSet(allowed)

	type candidate struct {
		symbol string
		rank   int
		oi     float64
	}
	best := make(map[string]candidate)

	for _, entry := range catalog {
		if !entry.IsPerp || entry.Base == "" {
			continue
		}
		if _, ok := allowedSet[entry.Base]; !ok {
			continue
		}
		stats, ok := live[entry.Symbol]
		if !ok {
			continue
		}

		c := candidate{
			symbol: entry.Symbol,
			rank:   QuoteRank(entry.Quote, quotePriority),
			oi:     stats.TotalOpenInterest(),
		}
		current, seen := best[entry.Base]
		if !seen || beats(c.rank, c.oi, c.symbol, current.rank, current.oi, current.symbol) {
			best[entry.Base] = c
		}
	}

	winners := make([]models.Winner, 0, len(best))
	for asset, c := range best {
		winners = append(winners, models.Winner{Asset: asset, Symbol: c.symbol})
	}
	sort.Slice(winners, func(i, j int) bool { return winners[i].Asset < winners[j].Asset })
	return winners
}

func beats(rank int, oi float64, symbol string, otherRank int, otherOI float64, otherSymbol string) bool {
	if rank != otherRank {
		return rank > otherRank
	}
	if oi != otherOI {
		return oi > otherOI
	}
	return symbol < otherSymbol
}

// FilterAllowed keeps perpetual entries whose base asset is allowed.
func FilterAllowed(catalog []models.MarketCatalogEntry, allowed []string) []models.MarketCatalogEntry {
	allowedSet := assetSet(allowed)
	filtered := make([]models.MarketCatalogEntry, 0, len(catalog))
	for _, entry := range catalog {
		if !entry.IsPerp {
			continue
		}
		if _, ok := allowedSet[entry.Base]; ok {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}

func assetSet(assets []string) map[string]struct{} {
	set := make(map[string]struct{}, len(assets))
	for _, asset := range assets {
		set[strings.ToUpper(strings.TrimSpace(asset))] = struct{}{}
	}
	return set
}
