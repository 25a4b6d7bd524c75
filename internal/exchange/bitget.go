package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futures-bot/internal/model"
)

const (
	bitgetProductType = "USDT-FUTURES"
	bitgetMarginCoin  = "USDT"
	bitgetMarginMode  = "crossed"
)

// BitgetClient talks to the Bitget USDT-M futures REST API. The field
// casing and required productType/marginMode parameters follow Bitget's
// v2 mix contract exactly; other venues need their own client.
type BitgetClient struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	logger     *zap.Logger
}

func NewBitgetClient(baseURL string, creds Credentials, logger *zap.Logger) *BitgetClient {
	if baseURL == "" {
		baseURL = "https://api.bitget.com"
	}
	return &BitgetClient{
		baseURL:    baseURL,
		creds:      creds,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// bitgetEnvelope is the common response wrapper.
type bitgetEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *BitgetClient) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	side := "buy"
	if req.Side == model.SideShort {
		side = "sell"
	}
	tradeSide := "open"
	if req.ReduceOnly {
		tradeSide = "close"
		// Closing orders are placed against the held side, so the wire
		// side flips: a long is closed by a sell on trade side "close".
		if req.Side == model.SideLong {
			side = "sell"
		} else {
			side = "buy"
		}
	}

	orderType := req.OrderType
	if orderType == "" {
		orderType = "market"
	}

	body := map[string]string{
		"symbol":      req.Symbol,
		"productType": bitgetProductType,
		"marginMode":  bitgetMarginMode,
		"marginCoin":  bitgetMarginCoin,
		"size":        req.Size.String(),
		"side":        side,
		"tradeSide":   tradeSide,
		"orderType":   orderType,
	}
	if orderType == "limit" {
		body["price"] = req.Price.String()
		body["force"] = "gtc"
	}
	if req.ClientID != "" {
		body["clientOid"] = req.ClientID
	}

	var data struct {
		OrderID   string `json:"orderId"`
		ClientOid string `json:"clientOid"`
		PriceAvg  string `json:"priceAvg"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v2/mix/order/place-order", nil, body, &data); err != nil {
		return OrderResult{}, err
	}

	res := OrderResult{OrderID: data.OrderID, ClientID: data.ClientOid}
	if data.PriceAvg != "" {
		res.AvgPrice, _ = decimal.NewFromString(data.PriceAvg)
	}
	return res, nil
}

func (c *BitgetClient) ClosePosition(ctx context.Context, symbol string, side model.Side, size decimal.Decimal) (OrderResult, error) {
	return c.PlaceOrder(ctx, OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Size:       size,
		OrderType:  "market",
		ReduceOnly: true,
	})
}

func (c *BitgetClient) Positions(ctx context.Context, symbol string) ([]model.Position, error) {
	query := url.Values{}
	query.Set("productType", bitgetProductType)
	query.Set("marginCoin", bitgetMarginCoin)
	if symbol != "" {
		query.Set("symbol", symbol)
	}

	var data []struct {
		Symbol       string `json:"symbol"`
		HoldSide     string `json:"holdSide"`
		Total        string `json:"total"`
		OpenPriceAvg string `json:"openPriceAvg"`
		CTime        string `json:"cTime"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v2/mix/position/all-position", query, nil, &data); err != nil {
		return nil, err
	}

	positions := make([]model.Position, 0, len(data))
	for _, p := range data {
		size, err := decimal.NewFromString(p.Total)
		if err != nil || size.Sign() <= 0 {
			continue
		}
		entry, _ := decimal.NewFromString(p.OpenPriceAvg)
		side := model.SideLong
		if p.HoldSide == "short" {
			side = model.SideShort
		}
		openedAt := time.Now()
		if ms, err := strconv.ParseInt(p.CTime, 10, 64); err == nil {
			openedAt = time.Unix(0, ms*int64(time.Millisecond))
		}
		positions = append(positions, model.Position{
			Symbol:     p.Symbol,
			Side:       side,
			Size:       size,
			EntryPrice: entry,
			OpenedAt:   openedAt,
		})
	}
	return positions, nil
}

func (c *BitgetClient) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("productType", bitgetProductType)
	query.Set("granularity", timeframe)
	query.Set("limit", strconv.Itoa(limit))

	// Candle rows are [ts, open, high, low, close, baseVolume, quoteVolume].
	var data [][]string
	if err := c.call(ctx, http.MethodGet, "/api/v2/mix/market/candles", query, nil, &data); err != nil {
		return nil, err
	}

	candles := make([]model.Candle, 0, len(data))
	for _, row := range data {
		if len(row) < 6 {
			continue
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		open, _ := decimal.NewFromString(row[1])
		high, _ := decimal.NewFromString(row[2])
		low, _ := decimal.NewFromString(row[3])
		cls, _ := decimal.NewFromString(row[4])
		volume, _ := decimal.NewFromString(row[5])
		candles = append(candles, model.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     cls,
			Volume:    volume,
			Timestamp: time.Unix(0, ms*int64(time.Millisecond)),
		})
	}
	return candles, nil
}

// call signs and executes one REST request, unwrapping the envelope.
func (c *BitgetClient) call(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	requestPath := path
	if len(query) > 0 {
		requestPath += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bytes.NewReader(payload))
	if err != nil {
		return netError(err)
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("ACCESS-KEY", c.creds.APIKey)
	req.Header.Set("ACCESS-SIGN", c.sign(timestamp, method, requestPath, payload))
	req.Header.Set("ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("ACCESS-PASSPHRASE", c.creds.Passphrase)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return netError(err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusTooManyRequests {
		return &APIError{Kind: KindRateLimit, Code: "429", Msg: "request rate limit exceeded"}
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return netError(err)
	}

	var envelope bitgetEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return &APIError{Kind: KindExchange, Msg: fmt.Sprintf("status %d: %s", res.StatusCode, string(raw))}
	}
	if envelope.Code != "00000" {
		apiErr := classifyCode(envelope.Code, envelope.Msg)
		c.logger.Warn("bitget request rejected",
			zap.String("path", path),
			zap.String("code", envelope.Code),
			zap.String("msg", envelope.Msg),
		)
		return apiErr
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

// sign produces base64(HMAC-SHA256(secret, timestamp+method+path+body)).
func (c *BitgetClient) sign(timestamp, method, requestPath string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.creds.APISecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(method))
	mac.Write([]byte(requestPath))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
