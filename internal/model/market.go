package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle 代表一根K线 (immutable once created)
type Candle struct {
	Symbol    string          `json:"symbol" db:"symbol"`
	Timeframe string          `json:"timeframe" db:"timeframe"` // "1m", "5m", "1h"
	Open      decimal.Decimal `json:"o" db:"open"`
	High      decimal.Decimal `json:"h" db:"high"`
	Low       decimal.Decimal `json:"l" db:"low"`
	Close     decimal.Decimal `json:"c" db:"close"`
	Volume    decimal.Decimal `json:"v" db:"volume"`
	Timestamp time.Time       `json:"t" db:"time"`
}

// Side of a position or order.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite returns the side that closes a position opened on s.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Position 当前持仓. At most one open position per (user, symbol).
type Position struct {
	Symbol     string          `json:"symbol" db:"symbol"`
	Side       Side            `json:"side" db:"side"`
	Size       decimal.Decimal `json:"size" db:"size"`
	EntryPrice decimal.Decimal `json:"entry_price" db:"entry_price"`
	OpenedAt   time.Time       `json:"opened_at" db:"opened_at"`
}

// UnrealizedPnL values the position against the given mark price.
func (p Position) UnrealizedPnL(mark decimal.Decimal) decimal.Decimal {
	diff := mark.Sub(p.EntryPrice)
	if p.Side == SideShort {
		diff = diff.Neg()
	}
	return diff.Mul(p.Size)
}
