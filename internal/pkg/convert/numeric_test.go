package convert

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func TestToDecimal(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"string", " 101.25 ", "101.25"},
		{"garbage string", "n/a", "0"},
		{"json number", json.Number("0.0005"), "0.0005"},
		{"int", 7, "7"},
		{"nan", math.NaN(), "0"},
		{"nil", nil, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, decimal.RequireFromString(tc.want).Equal(ToDecimal(tc.in)), "got %s", ToDecimal(tc.in))
		})
	}
}

func TestToInt64(t *testing.T) {
	assert.Equal(t, int64(1700000000000), ToInt64("1700000000000"))
	assert.Equal(t, int64(12), ToInt64("12.9"))
	assert.Equal(t, int64(0), ToInt64("bad"))
	assert.Equal(t, int64(5), ToInt64(5.0))
}

func TestGJSONHelpers(t *testing.T) {
	doc := `{"px":"64000.5","sz":0.25,"time":1700000000123,"ts":"1700000000456"}`
	assert.Equal(t, "64000.5", GJSONDecimal(gjson.Get(doc, "px")).String())
	assert.Equal(t, "0.25", GJSONDecimal(gjson.Get(doc, "sz")).String())
	assert.True(t, GJSONDecimal(gjson.Get(doc, "missing")).IsZero())
	assert.Equal(t, int64(1700000000123), GJSONInt64(gjson.Get(doc, "time")))
	assert.Equal(t, int64(1700000000456), GJSONInt64(gjson.Get(doc, "ts")))
}
