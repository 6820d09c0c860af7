package exchange

import "strings"

// SymbolConvention describes how an exchange spells market symbols.
type SymbolConvention struct {
	// Separators lists candidate delimiters; the first one present in a symbol is used.
	Separators string
	// Prefix is required and stripped before splitting, e.g. "PERP_" on Orderly.
	// Symbols carrying it are perpetuals.
	Prefix string
	// PerpMarker is the trailing token that marks a perpetual, e.g. "PERP".
	PerpMarker string
	// StripSuffix accepts undelimited symbols such as "BTCPERP" by trimming PerpMarker.
	StripSuffix bool
	// Bare means the symbol is the base asset itself, quoted in BareQuote.
	Bare      bool
	BareQuote string
	// AllPerp marks every listed market as a perpetual.
	AllPerp bool
}

// ParsedSymbol is the result of splitting a symbol. Malformed input yields the zero value.
type ParsedSymbol struct {
	Base   string
	Quote  string
	IsPerp bool
}

// Parse splits symbol into base and quote. It never fails: anything that does
// not follow the convention parses to an empty ParsedSymbol.
func (c SymbolConvention) Parse(symbol string) ParsedSymbol {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return ParsedSymbol{}
	}

	if c.Bare {
		if !validToken(s) {
			return ParsedSymbol{}
		}
		return ParsedSymbol{Base: s, Quote: c.BareQuote, IsPerp: true}
	}

	prefixed := false
	if c.Prefix != "" {
		if !strings.HasPrefix(s, c.Prefix) {
			return ParsedSymbol{}
		}
		s = strings.TrimPrefix(s, c.Prefix)
		prefixed = true
	}

	sep := ""
	for _, candidate := range c.Separators {
		if strings.ContainsRune(s, candidate) {
			sep = string(candidate)
			break
		}
	}

	if sep == "" {
		if c.StripSuffix && c.PerpMarker != "" && strings.HasSuffix(s, c.PerpMarker) {
			base := strings.TrimSuffix(s, c.PerpMarker)
			if validToken(base) {
				return ParsedSymbol{Base: base, IsPerp: true}
			}
		}
		return ParsedSymbol{}
	}

	tokens := strings.Split(s, sep)
	for _, token := range tokens {
		if !validToken(token) {
			return ParsedSymbol{}
		}
	}

	isPerp := prefixed || c.AllPerp
	if c.PerpMarker != "" && tokens[len(tokens)-1] == c.PerpMarker {
		isPerp = true
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) == 0 {
		return ParsedSymbol{}
	}

	parsed := ParsedSymbol{Base: tokens[0], IsPerp: isPerp}
	if len(tokens) > 1 {
		parsed.Quote = tokens[1]
	}
	return parsed
}

func validToken(token string) bool {
	if token == "" {
		return false
	}
	for _, r := range token {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
