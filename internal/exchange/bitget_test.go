package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"futures-bot/internal/model"
)

func testCreds() Credentials {
	return Credentials{APIKey: "key", APISecret: "secret", Passphrase: "pass"}
}

func TestBitget_PlaceOrderWireFormat(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/mix/order/place-order", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("ACCESS-KEY"))
		assert.NotEmpty(t, r.Header.Get("ACCESS-SIGN"))
		assert.NotEmpty(t, r.Header.Get("ACCESS-TIMESTAMP"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"code":"00000","msg":"success","data":{"orderId":"123","clientOid":"abc"}}`))
	}))
	defer server.Close()

	c := NewBitgetClient(server.URL, testCreds(), zap.NewNop())
	res, err := c.PlaceOrder(context.Background(), OrderRequest{
		Symbol:    "BTCUSDT",
		Side:      model.SideLong,
		Size:      decimal.NewFromFloat(0.01),
		OrderType: "market",
		ClientID:  "abc",
	})

	require.NoError(t, err)
	assert.Equal(t, "123", res.OrderID)
	assert.Equal(t, "USDT-FUTURES", got["productType"])
	assert.Equal(t, "crossed", got["marginMode"])
	assert.Equal(t, "USDT", got["marginCoin"])
	assert.Equal(t, "buy", got["side"])
	assert.Equal(t, "open", got["tradeSide"])
	assert.Equal(t, "0.01", got["size"])
}

func TestBitget_ClosePositionFlipsSide(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"code":"00000","msg":"success","data":{"orderId":"9"}}`))
	}))
	defer server.Close()

	c := NewBitgetClient(server.URL, testCreds(), zap.NewNop())
	_, err := c.ClosePosition(context.Background(), "BTCUSDT", model.SideLong, decimal.NewFromFloat(0.01))

	require.NoError(t, err)
	assert.Equal(t, "sell", got["side"], "closing a long sells on trade side close")
	assert.Equal(t, "close", got["tradeSide"])
}

func TestBitget_ErrorClassification(t *testing.T) {
	tests := []struct {
		code string
		kind ErrorKind
	}{
		{"40037", KindAuth},
		{"43012", KindInsufficientBalance},
		{"45110", KindMinOrderSize},
		{"30007", KindRateLimit},
		{"59999", KindExchange},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{"code": tt.code, "msg": "rejected"})
			}))
			defer server.Close()

			c := NewBitgetClient(server.URL, testCreds(), zap.NewNop())
			_, err := c.PlaceOrder(context.Background(), OrderRequest{
				Symbol: "BTCUSDT", Side: model.SideLong, Size: decimal.NewFromFloat(0.01),
			})

			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestBitget_PositionsParsing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "USDT-FUTURES", r.URL.Query().Get("productType"))
		w.Write([]byte(`{"code":"00000","msg":"success","data":[
			{"symbol":"BTCUSDT","holdSide":"long","total":"0.01","openPriceAvg":"65000.5","cTime":"1700000000000"},
			{"symbol":"ETHUSDT","holdSide":"short","total":"0","openPriceAvg":"3500","cTime":"1700000000000"}
		]}`))
	}))
	defer server.Close()

	c := NewBitgetClient(server.URL, testCreds(), zap.NewNop())
	positions, err := c.Positions(context.Background(), "")

	require.NoError(t, err)
	require.Len(t, positions, 1, "zero-size rows are skipped")
	assert.Equal(t, model.SideLong, positions[0].Side)
	assert.True(t, positions[0].Size.Equal(decimal.NewFromFloat(0.01)))
	assert.True(t, positions[0].EntryPrice.Equal(decimal.NewFromFloat(65000.5)))
}

func TestBitget_CandlesParsing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1m", r.URL.Query().Get("granularity"))
		w.Write([]byte(`{"code":"00000","msg":"success","data":[
			["1700000000000","65000","65100","64900","65050","12.5","812000"],
			["1700000060000","65050","65200","65000","65150","9.1","592000"]
		]}`))
	}))
	defer server.Close()

	c := NewBitgetClient(server.URL, testCreds(), zap.NewNop())
	candles, err := c.Candles(context.Background(), "BTCUSDT", "1m", 2)

	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.True(t, candles[0].Close.Equal(decimal.NewFromInt(65050)))
	assert.True(t, candles[1].Timestamp.After(candles[0].Timestamp))
	assert.Equal(t, "1m", candles[0].Timeframe)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&APIError{Kind: KindNetwork}))
	assert.True(t, Retryable(&APIError{Kind: KindRateLimit}))
	assert.False(t, Retryable(&APIError{Kind: KindAuth}))
	assert.False(t, Retryable(&APIError{Kind: KindMinOrderSize}))
	assert.False(t, Retryable(&APIError{Kind: KindInsufficientBalance}))
}
