package bybit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
)

// sign sets the v5 auth headers: HMAC-SHA256 over
// timestamp + apiKey + recvWindow + queryString.
func sign(h http.Header, apiKey, secret string, ts int64, recvWindow int64, query string) {
	tsStr := strconv.FormatInt(ts, 10)
	rw := strconv.FormatInt(recvWindow, 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(tsStr + apiKey + rw + query))
	h.Set("X-BAPI-API-KEY", apiKey)
	h.Set("X-BAPI-TIMESTAMP", tsStr)
	h.Set("X-BAPI-RECV-WINDOW", rw)
	h.Set("X-BAPI-SIGN", hex.EncodeToString(mac.Sum(nil)))
}
