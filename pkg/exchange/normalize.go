package exchange

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// secondsCutoff separates second and millisecond epoch timestamps.
const secondsCutoff = 1e12

// NormalizeToMs converts a funding timestamp to milliseconds. Values below
// 1e12 are taken as seconds.
func NormalizeToMs(t int64) int64 {
	if t < secondsCutoff {
		return t * 1000
	}
	return t
}

// Number decodes a JSON number or numeric string. Anything else, including
// NaN and infinities, leaves it invalid instead of failing the decode.
type Number struct {
	Value float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	text := string(bytes.TrimSpace(data))
	if text == "" || text == "null" {
		return nil
	}
	if text[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		text = strings.TrimSpace(s)
	}
	value, ok := parseFloat(text)
	if ok {
		*n = Number{Value: value, Valid: true}
	}
	return nil
}

// Or returns the value, or fallback when invalid.
func (n Number) Or(fallback float64) float64 {
	if !n.Valid {
		return fallback
	}
	return n.Value
}

// Ptr returns a pointer to the value, or nil when invalid.
func (n Number) Ptr() *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

// Timestamp decodes an epoch in seconds or milliseconds (number or numeric
// string) or an RFC 3339 string into milliseconds.
type Timestamp struct {
	Ms    int64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	*t = Timestamp{}
	var n Number
	_ = n.UnmarshalJSON(data)
	if n.Valid {
		if n.Value > 0 {
			*t = Timestamp{Ms: NormalizeToMs(int64(n.Value)), Valid: true}
		}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	if ms := parsed.UnixMilli(); ms > 0 {
		*t = Timestamp{Ms: ms, Valid: true}
	}
	return nil
}

// First returns the first valid timestamp in ts.
func First(ts ...Timestamp) (int64, bool) {
	for _, t := range ts {
		if t.Valid {
			return t.Ms, true
		}
	}
	return 0, false
}

// FirstNumber returns the first valid number in ns.
func FirstNumber(ns ...Number) Number {
	for _, n := range ns {
		if n.Valid {
			return n
		}
	}
	return Number{}
}

func parseFloat(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0, false
	}
	value := d.InexactFloat64()
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
