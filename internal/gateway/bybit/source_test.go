package bybit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tradedesk/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pageOne = `{"retCode":0,"retMsg":"OK","result":{"category":"linear","nextPageCursor":"c2","list":[
  {"symbol":"BTCUSDT","side":"Sell","qty":"0.01","avgEntryPrice":"60000","avgExitPrice":"61000","closedPnl":"9.5","openFee":"0.2","closeFee":"0.3","createdTime":"1700000000000","updatedTime":"1700000060000","orderId":"a"}
]}}`

const pageTwo = `{"retCode":0,"retMsg":"OK","result":{"category":"linear","nextPageCursor":"","list":[
  {"symbol":"BTCUSDT","side":"Buy","qty":"0.02","avgEntryPrice":"62000","avgExitPrice":"61000","closedPnl":"19","createdTime":"1699990000000","updatedTime":"1699990060000","orderId":"b"}
]}}`

func TestFetchSignsAndPages(t *testing.T) {
	fixed := time.UnixMilli(1700000100000)
	var cursors []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, closedPnlPath, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "linear", q.Get("category"))
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "1", q.Get("startTime"))
		assert.Equal(t, "1700000100000", q.Get("endTime"))

		mac := hmac.New(sha256.New, []byte("secret"))
		mac.Write([]byte("1700000100000" + "key" + "5000" + r.URL.RawQuery))
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), r.Header.Get("X-BAPI-SIGN"))
		assert.Equal(t, "key", r.Header.Get("X-BAPI-API-KEY"))

		cursors = append(cursors, q.Get("cursor"))
		if q.Get("cursor") == "" {
			_, _ = io.WriteString(w, pageOne)
			return
		}
		_, _ = io.WriteString(w, pageTwo)
	}))
	defer srv.Close()

	src, err := New(Config{BaseURL: srv.URL, APIKey: "key", APISecret: "secret"})
	require.NoError(t, err)
	src.now = func() time.Time { return fixed }
	assert.Equal(t, types.KindClosedTrade, src.Kind())

	recs, err := src.Fetch(context.Background(), types.FetchRequest{Symbol: "BTC/USDT", Start: 1, End: 1700000100000})
	require.NoError(t, err)
	assert.Equal(t, []string{"", "c2"}, cursors)
	require.Len(t, recs, 2)

	first := recs[0].Closed
	require.NotNil(t, first)
	assert.Equal(t, "BTC/USDT", first.Symbol)
	assert.Equal(t, types.SideSell, first.Side)
	assert.Equal(t, "0.5", first.Fee.String())
	assert.Equal(t, "9.5", first.ClosedPnl.String())
	assert.Equal(t, int64(1700000060000), first.ExitTime)
	assert.Equal(t, int64(1700000000000), first.EntryTime)
	assert.Contains(t, string(first.Raw), `"orderId":"a"`)

	second := recs[1].Closed
	assert.Equal(t, types.SideBuy, second.Side)
	assert.True(t, second.Fee.IsZero())
}

func TestFetchRetCodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"retCode":10003,"retMsg":"API key is invalid."}`)
	}))
	defer srv.Close()

	src, err := New(Config{BaseURL: srv.URL, APIKey: "key", APISecret: "secret"})
	require.NoError(t, err)
	_, err = src.Fetch(context.Background(), types.FetchRequest{Start: 1, End: 2})
	assert.ErrorContains(t, err, "10003")
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	src, err := New(Config{BaseURL: srv.URL, APIKey: "key", APISecret: "secret"})
	require.NoError(t, err)
	_, err = src.Fetch(context.Background(), types.FetchRequest{Start: 1, End: 2})
	assert.ErrorContains(t, err, "502")
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{APIKey: "key"})
	assert.Error(t, err)
}
