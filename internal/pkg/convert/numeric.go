// Package convert coerces loosely typed upstream values into numbers.
// Malformed input never fails: it degrades to zero so a single bad field cannot
// abort a batch.
package convert

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// ToFloat64 converts various numeric types to float64.
// Returns 0 for unsupported types or parse failures.
func ToFloat64(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case uint64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f
	case decimal.Decimal:
		return t.InexactFloat64()
	default:
		return 0
	}
}

// ToDecimal converts to decimal.Decimal; NaN, Inf and unparsable input yield zero.
func ToDecimal(v any) decimal.Decimal {
	switch t := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return t
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return decimal.Zero
		}
		return d
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case int:
		return decimal.NewFromInt(int64(t))
	case int64:
		return decimal.NewFromInt(t)
	default:
		f := ToFloat64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(f)
	}
}

// ToInt64 converts to int64, truncating fractional input.
func ToInt64(v any) int64 {
	switch t := v.(type) {
	case nil:
		return 0
	case int64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float64:
		return int64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return int64(f)
	case string:
		s := strings.TrimSpace(t)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		f, _ := strconv.ParseFloat(s, 64)
		return int64(f)
	default:
		return int64(ToFloat64(v))
	}
}

// GJSONDecimal reads a gjson field that exchanges may send as string or number.
func GJSONDecimal(r gjson.Result) decimal.Decimal {
	if !r.Exists() {
		return decimal.Zero
	}
	if r.Type == gjson.Number {
		return ToDecimal(r.Raw)
	}
	return ToDecimal(r.String())
}

// GJSONInt64 reads a millisecond timestamp sent as string or number.
func GJSONInt64(r gjson.Result) int64 {
	if !r.Exists() {
		return 0
	}
	if r.Type == gjson.Number {
		return ToInt64(r.Raw)
	}
	return ToInt64(r.String())
}
