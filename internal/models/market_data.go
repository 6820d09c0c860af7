package models

import "time"

// MarketMeta is the static, slow-changing data an exchange publishes per market.
type MarketMeta struct {
	FundingPeriod time.Duration `json:"funding_period"`
	MakerFee      *float64      `json:"maker_fee,omitempty"`
	TakerFee      *float64      `json:"taker_fee,omitempty"`
}

// MarketCatalogEntry is one listed market after symbol parsing.
type MarketCatalogEntry struct {
	Symbol string     `json:"symbol"`
	Base   string     `json:"base"`
	Quote  string     `json:"quote"`
	IsPerp bool       `json:"is_perp"`
	Meta   MarketMeta `json:"meta"`
}

// LiveStats are the current funding and open interest figures of one market.
// Nil pointers mean the upstream did not report the value.
type LiveStats struct {
	FundingRate       float64  `json:"funding_rate"`
	NextFundingAtMs   int64    `json:"next_funding,omitempty"`
	OpenInterest      *float64 `json:"open_interest,omitempty"`
	LongOpenInterest  *float64 `json:"long_open_interest,omitempty"`
	ShortOpenInterest *float64 `json:"short_open_interest,omitempty"`
}

// TotalOpenInterest returns the open interest used for ranking, or 0 when unknown.
func (s LiveStats) TotalOpenInterest() float64 {
	if s.OpenInterest != nil {
		return *s.OpenInterest
	}
	var total float64
	if s.LongOpenInterest != nil {
		total += *s.LongOpenInterest
	}
	if s.ShortOpenInterest != nil {
		total += *s.ShortOpenInterest
	}
	return total
}

// Winner is the market chosen to represent an asset on one exchange.
type Winner struct {
	Asset  string `json:"asset"`
	Symbol string `json:"symbol"`
}
