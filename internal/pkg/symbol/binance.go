package symbol

import "strings"

// ConcatConverter serves exchanges that spell pairs without a separator
// (Binance and Bybit linear contracts).
type ConcatConverter struct {
	format Format
}

func (c ConcatConverter) ToExchange(internal string) string {
	if concat := Parse(internal).Concat(); concat != "" {
		return concat
	}
	s := strings.ToUpper(strings.TrimSpace(internal))
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	return strings.ReplaceAll(s, "/", "")
}

func (ConcatConverter) FromExchange(raw string) string {
	return Normalize(raw)
}

func (c ConcatConverter) Format() Format {
	return c.format
}

var (
	Binance = ConcatConverter{format: FormatBinance}
	Bybit   = ConcatConverter{format: FormatBybit}
)
