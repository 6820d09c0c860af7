package exchange

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/irfndi/funding-collector/internal/models"
)

func perp(symbol, base, quote string) models.MarketCatalogEntry {
	return models.MarketCatalogEntry{Symbol: symbol, Base: base, Quote: quote, IsPerp: true}
}

func withOI(rate, oi float64) models.LiveStats {
	return models.LiveStats{FundingRate: rate, OpenInterest: &oi}
}

func TestQuoteRank(t *testing.T) {
	priority := []string{"USD", "USDC", "USDT"}
	assert.Equal(t, 3, QuoteRank("USD", priority))
	assert.Equal(t, 2, QuoteRank("usdc", priority))
	assert.Equal(t, 1, QuoteRank("USDT", priority))
	assert.Equal(t, 0, QuoteRank("EUR", priority))
	assert.Equal(t, 0, QuoteRank("", priority))
}

func TestSelectWinners_QuotePriorityBeatsOpenInterest(t *testing.T) {
	catalog := []models.MarketCatalogEntry{
		perp("BTC-USDC-PERP", "BTC", "USDC"),
		perp("BTC-USD-PERP", "BTC", "USD"),
	}
	live := map[string]models.LiveStats{
		"BTC-USD-PERP":  withOI(0.0001, 50),
		"BTC-USDC-PERP": withOI(0.0002, 100),
	}

	winners := SelectWinners(catalog, live, []string{"BTC"}, []string{"USD", "USDC"})

	assert.Equal(t, []models.Winner{{Asset: "BTC", Symbol: "BTC-USD-PERP"}}, winners)
}

func TestSelectWinners_OpenInterestThenSymbol(t *testing.T) {
	catalog := []models.MarketCatalogEntry{
		perp("ETH-USD-PERP", "ETH", "USD"),
		perp("ETH-USD-PERP2", "ETH", "USD"),
		perp("SOL-USD-B", "SOL", "USD"),
		perp("SOL-USD-A", "SOL", "USD"),
	}
	live := map[string]models.LiveStats{
		"ETH-USD-PERP":  withOI(0.0001, 10),
		"ETH-USD-PERP2": withOI(0.0001, 20),
		"SOL-USD-A":     withOI(0.0001, 5),
		"SOL-USD-B":     withOI(0.0001, 5),
	}

	winners := SelectWinners(catalog, live, []string{"ETH", "SOL"}, []string{"USD"})

	assert.Equal(t, []models.Winner{
		{Asset: "ETH", Symbol: "ETH-USD-PERP2"},
		{Asset: "SOL", Symbol: "SOL-USD-A"},
	}, winners)
}

func TestSelectWinners_DropsAssetsWithoutLiveStats(t *testing.T) {
	catalog := []models.MarketCatalogEntry{
		perp("BTC-USD-PERP", "BTC", "USD"),
		perp("ETH-USD-PERP", "ETH", "USD"),
		perp("DOGE-USD-PERP", "DOGE", "USD"),
		{Symbol: "SOL-USD", Base: "SOL", Quote: "USD"},
	}
	live := map[string]models.LiveStats{
		"BTC-USD-PERP":  withOI(0.0001, 1),
		"DOGE-USD-PERP": withOI(0.0001, 1),
		"SOL-USD":       withOI(0.0001, 1),
	}

	winners := SelectWinners(catalog, live, []string{"btc", "ETH", "SOL"}, []string{"USD"})

	assert.Equal(t, []models.Winner{{Asset: "BTC", Symbol: "BTC-USD-PERP"}}, winners)
}

func TestSelectWinners_Deterministic(t *testing.T) {
	catalog := []models.MarketCatalogEntry{
		perp("BTC-USD-PERP", "BTC", "USD"),
		perp("BTC-USDT-PERP", "BTC", "USDT"),
		perp("ETH-USDC-PERP", "ETH", "USDC"),
		perp("ETH-USDT-PERP", "ETH", "USDT"),
		perp("SOL-USD-PERP", "SOL", "USD"),
		perp("SOL-USD-PERPX", "SOL", "USD"),
	}
	live := map[string]models.LiveStats{}
	for _, entry := range catalog {
		live[entry.Symbol] = withOI(0.0001, 7)
	}
	allowed := []string{"SOL", "BTC", "ETH"}
	priority := []string{"USD", "USDC", "USDT"}

	expected := SelectWinners(catalog, live, allowed, priority)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]models.MarketCatalogEntry(nil), catalog...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, expected, SelectWinners(shuffled, live, allowed, priority))
	}
	assert.Equal(t, []models.Winner{
		{Asset: "BTC", Symbol: "BTC-USD-PERP"},
		{Asset: "ETH", Symbol: "ETH-USDC-PERP"},
		{Asset: "SOL", Symbol: "SOL-USD-PERP"},
	}, expected)
}

func TestFilterAllowed(t *testing.T) {
	catalog := []models.MarketCatalogEntry{
		perp("BTC-USD-PERP", "BTC", "USD"),
		perp("ETH-USD-PERP", "ETH", "USD"),
		{Symbol: "BTC-USD", Base: "BTC", Quote: "USD"},
	}

	filtered := FilterAllowed(catalog, []string{"btc"})

	assert.Equal(t, []models.MarketCatalogEntry{perp("BTC-USD-PERP", "BTC", "USD")}, filtered)
}
