package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// StrategyConfig 策略配置实体. Immutable for the duration of a bot run;
// changing parameters requires a restart.
type StrategyConfig struct {
	ID              int64           `json:"id" db:"id"`
	UserID          int64           `json:"user_id" db:"user_id"`
	Name            string          `json:"name" db:"name"`
	Variant         string          `json:"variant" db:"variant"` // "ma_cross", "rsi"
	Symbol          string          `json:"symbol" db:"symbol"`
	Timeframe       string          `json:"timeframe" db:"timeframe"`
	FastPeriod      int             `json:"fast_period" db:"fast_period"`
	SlowPeriod      int             `json:"slow_period" db:"slow_period"`
	StopLossPct     float64         `json:"stop_loss_pct" db:"stop_loss_pct"`
	TakeProfitPct   float64         `json:"take_profit_pct" db:"take_profit_pct"`
	CooldownCandles int             `json:"cooldown_candles" db:"cooldown_candles"`
	MinConfidence   float64         `json:"min_confidence" db:"min_confidence"`
	PositionSize    decimal.Decimal `json:"position_size" db:"position_size"`
	Active          bool            `json:"active" db:"active"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// Action is the per-tick trading decision of a strategy.
type Action string

const (
	ActionBuy   Action = "buy"
	ActionSell  Action = "sell"
	ActionHold  Action = "hold"
	ActionClose Action = "close"
)

// Signal is produced once per evaluation tick and consumed immediately.
// Confidence is in [0,1].
type Signal struct {
	Action     Action          `json:"action"`
	Confidence float64         `json:"confidence"`
	Size       decimal.Decimal `json:"size"`
	Reason     string          `json:"reason"`
}

// Hold returns a neutral signal with the given reason.
func Hold(reason string) Signal {
	return Signal{Action: ActionHold, Reason: reason}
}

// BotState is the lifecycle state of a user's execution unit.
type BotState string

const (
	BotStopped  BotState = "stopped"
	BotStarting BotState = "starting"
	BotRunning  BotState = "running"
	BotStopping BotState = "stopping"
)

// BotRunState is persisted per user; the supervisor holds the live task
// handle but this row is the source of truth for "is this bot running".
type BotRunState struct {
	UserID     int64     `json:"user_id" db:"user_id"`
	StrategyID int64     `json:"strategy_id" db:"strategy_id"`
	State      BotState  `json:"state" db:"state"`
	Message    string    `json:"message" db:"message"`
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Running reports whether the bot occupies its user slot.
func (s BotRunState) Running() bool {
	return s.State == BotStarting || s.State == BotRunning || s.State == BotStopping
}

// TradeRecord is an immutable append-only record of a completed entry+exit.
// ExitPrice and PnL stay zero until the position is closed.
type TradeRecord struct {
	ID         string          `json:"id" db:"id"`
	UserID     int64           `json:"user_id" db:"user_id"`
	StrategyID int64           `json:"strategy_id" db:"strategy_id"`
	Symbol     string          `json:"symbol" db:"symbol"`
	Side       Side            `json:"side" db:"side"`
	Size       decimal.Decimal `json:"size" db:"size"`
	EntryPrice decimal.Decimal `json:"entry_price" db:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price" db:"exit_price"`
	PnL        decimal.Decimal `json:"pnl" db:"pnl"`
	OpenedAt   time.Time       `json:"opened_at" db:"opened_at"`
	ClosedAt   time.Time       `json:"closed_at" db:"closed_at"`
	Closed     bool            `json:"closed" db:"closed"`
}
