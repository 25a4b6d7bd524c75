package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"futures-bot/internal/model"
)

// Credentials are the decrypted API credentials for one user, read from
// the external credential store.
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

// Configured reports whether the credentials are usable.
func (c Credentials) Configured() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// OrderRequest captures an order intent in venue terms.
type OrderRequest struct {
	Symbol     string
	Side       model.Side
	Size       decimal.Decimal
	OrderType  string // "market" or "limit"
	Price      decimal.Decimal
	ReduceOnly bool
	ClientID   string
}

// OrderResult is the venue acknowledgement. AvgPrice is zero when the
// venue does not report a fill price on placement.
type OrderResult struct {
	OrderID  string
	ClientID string
	AvgPrice decimal.Decimal
}

// Client is the REST surface the execution core needs from a futures
// venue. Implementations return *APIError for venue rejections.
type Client interface {
	// PlaceOrder submits a market or limit order.
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	// ClosePosition places a reduce-only market order against an open
	// position. Size must be the venue-reported size, not local state.
	ClosePosition(ctx context.Context, symbol string, side model.Side, size decimal.Decimal) (OrderResult, error)
	// Positions returns the open positions, optionally filtered by symbol.
	Positions(ctx context.Context, symbol string) ([]model.Position, error)
	// Candles fetches up to limit historical candles, oldest first.
	Candles(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error)
}
