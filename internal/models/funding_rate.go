package models

import "strings"

// Liquidity is the long/short depth reported alongside a funding rate.
type Liquidity struct {
	Long  float64 `json:"long"`
	Short float64 `json:"short"`
}

// Fees are the maker/taker fee rates of the market a record came from.
type Fees struct {
	Maker float64 `json:"maker"`
	Taker float64 `json:"taker"`
}

// CanonicalFundingRecord is the exchange-agnostic funding snapshot for one asset.
type CanonicalFundingRecord struct {
	Exchange        string    `json:"exchange"`
	Asset           string    `json:"asset"`
	Symbol          string    `json:"symbol"`
	FundingRate     float64   `json:"funding_rate"`
	NextFundingAtMs int64     `json:"next_funding"`
	Liquidity       Liquidity `json:"liquidity"`
	Fees            Fees      `json:"fees"`
}

// Key identifies the record in last-sent state.
func (r CanonicalFundingRecord) Key() string {
	return StateKey(r.Exchange, r.Asset)
}

// StateKey formats the "<exchange>:<asset>" key used for last-sent state.
func StateKey(exchange, asset string) string {
	return strings.ToLower(exchange) + ":" + strings.ToUpper(asset)
}

// LastSentState is what was most recently delivered for one exchange/asset pair.
type LastSentState struct {
	TimestampMs     int64   `json:"ts"`
	FundingRate     float64 `json:"funding_rate"`
	NextFundingAtMs int64   `json:"next_funding"`
}

// Tag is one name/value attribute of an outbound message.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FundingPayload is the serialized body of a Funding-Update message.
// Field order is part of the wire format.
type FundingPayload struct {
	Dex            string    `json:"dex"`
	Pair           string    `json:"pair"`
	FundingRate    float64   `json:"funding_rate"`
	NextFunding    int64     `json:"next_funding"`
	NextFundingSec int64     `json:"next_funding_sec"`
	Liquidity      Liquidity `json:"liquidity"`
	Fees           Fees      `json:"fees"`
	Timestamp      int64     `json:"timestamp"`
	TimestampSec   int64     `json:"timestamp_sec"`
	Schema         string    `json:"schema"`
}

// OutboundMessage pairs the tag set with the payload for one dispatch.
type OutboundMessage struct {
	Target  string         `json:"target"`
	Tags    []Tag          `json:"tags"`
	Payload FundingPayload `json:"payload"`
}

// TagValue returns the value of the first tag called name.
func (m OutboundMessage) TagValue(name string) (string, bool) {
	for _, tag := range m.Tags {
		if tag.Name == name {
			return tag.Value, true
		}
	}
	return "", false
}
