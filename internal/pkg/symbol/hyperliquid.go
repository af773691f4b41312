package symbol

import "strings"

// Hyperliquid perps are keyed by coin name and settle in USDC.
type HyperliquidConverter struct{}

const hyperliquidQuote = "USDC"

func (HyperliquidConverter) ToExchange(internal string) string {
	s := strings.TrimSpace(internal)
	if s == "" {
		return ""
	}
	if sym := Parse(s); sym.Base != "" {
		return sym.Base
	}
	return strings.ToUpper(s)
}

func (HyperliquidConverter) FromExchange(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	if strings.Contains(s, "/") {
		return Normalize(s)
	}
	return strings.ToUpper(s) + "/" + hyperliquidQuote
}

func (HyperliquidConverter) Format() Format {
	return FormatHyperliquid
}

var Hyperliquid = HyperliquidConverter{}
