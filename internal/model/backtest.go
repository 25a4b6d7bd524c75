package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BacktestStatus lifecycle: queued -> running -> completed | failed.
type BacktestStatus string

const (
	BacktestQueued    BacktestStatus = "queued"
	BacktestRunning   BacktestStatus = "running"
	BacktestCompleted BacktestStatus = "completed"
	BacktestFailed    BacktestStatus = "failed"
)

// BacktestMetrics 回测统计指标, derived from the trade log and equity curve
// only after the run completes. All divisions guard against zero denominators
// by returning 0.
type BacktestMetrics struct {
	TotalReturnPct float64 `json:"total_return_pct"`
	TotalTrades    int     `json:"total_trades"`
	WinRatePct     float64 `json:"win_rate_pct"`
	ProfitFactor   float64 `json:"profit_factor"`
	AvgWin         float64 `json:"avg_win"`
	AvgLoss        float64 `json:"avg_loss"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
}

// BacktestResult 回测结果报告
type BacktestResult struct {
	ID             string            `json:"id" db:"id"`
	UserID         int64             `json:"user_id" db:"user_id"`
	StrategyID     int64             `json:"strategy_id" db:"strategy_id"`
	Status         BacktestStatus    `json:"status" db:"status"`
	Error          string            `json:"error,omitempty" db:"error"`
	InitialBalance decimal.Decimal   `json:"initial_balance" db:"initial_balance"`
	FinalBalance   decimal.Decimal   `json:"final_balance" db:"final_balance"`
	EquityCurve    []decimal.Decimal `json:"equity_curve"`
	Trades         []TradeRecord     `json:"trades"`
	Metrics        BacktestMetrics   `json:"metrics"`
	Start          time.Time         `json:"start" db:"start_time"`
	End            time.Time         `json:"end" db:"end_time"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	FinishedAt     time.Time         `json:"finished_at" db:"finished_at"`
}
