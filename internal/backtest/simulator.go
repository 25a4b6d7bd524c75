package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futures-bot/internal/buffer"
	"futures-bot/internal/model"
	"futures-bot/internal/strategy"
)

// Simulator replays stored candles through a strategy and fills every signal
// at the close of the candle that produced it. There is no slippage, fee or
// partial-fill model: a fill is the full signal size at the close price.
type Simulator struct {
	logger *zap.Logger
}

func NewSimulator(logger *zap.Logger) *Simulator {
	return &Simulator{logger: logger}
}

// Run walks the candle series in order, evaluating the strategy against the
// same sliding window a live execution unit would see. Realized pnl moves the
// balance; the equity curve records balance plus unrealized pnl after every
// candle. Any position still open after the last candle is closed at its
// close price so the final balance reflects a flat book.
func (s *Simulator) Run(ctx context.Context, cfg model.StrategyConfig, candles []model.Candle, initialBalance decimal.Decimal) (model.BacktestResult, error) {
	strat, err := strategy.New(cfg)
	if err != nil {
		return model.BacktestResult{}, err
	}
	if len(candles) == 0 {
		return model.BacktestResult{}, fmt.Errorf("no candles for %s %s in the requested range", cfg.Symbol, cfg.Timeframe)
	}

	buf := buffer.New(strategy.Lookback(cfg) + 1)
	balance := initialBalance
	equity := make([]decimal.Decimal, 0, len(candles))
	var trades []model.TradeRecord
	var pos *model.Position
	var open *model.TradeRecord

	for i := range candles {
		if i%1000 == 0 && ctx.Err() != nil {
			return model.BacktestResult{}, ctx.Err()
		}
		c := candles[i]
		buf.Push(c)

		sig := strat.Evaluate(buf.Snapshot(), pos)
		switch sig.Action {
		case model.ActionBuy, model.ActionSell:
			if pos == nil {
				pos, open = s.openAt(cfg, sig, c)
			}
		case model.ActionClose:
			if pos != nil {
				balance = balance.Add(s.closeAt(pos, open, c, &trades))
				pos, open = nil, nil
			}
		}

		eq := balance
		if pos != nil {
			eq = eq.Add(pos.UnrealizedPnL(c.Close))
		}
		equity = append(equity, eq)
	}

	if pos != nil {
		last := candles[len(candles)-1]
		balance = balance.Add(s.closeAt(pos, open, last, &trades))
		equity[len(equity)-1] = balance
	}

	return model.BacktestResult{
		Status:         model.BacktestCompleted,
		InitialBalance: initialBalance,
		FinalBalance:   balance,
		EquityCurve:    equity,
		Trades:         trades,
		Metrics:        computeMetrics(initialBalance, balance, trades, equity),
	}, nil
}

func (s *Simulator) openAt(cfg model.StrategyConfig, sig model.Signal, c model.Candle) (*model.Position, *model.TradeRecord) {
	side := model.SideLong
	if sig.Action == model.ActionSell {
		side = model.SideShort
	}
	pos := &model.Position{
		Symbol:     cfg.Symbol,
		Side:       side,
		Size:       sig.Size,
		EntryPrice: c.Close,
		OpenedAt:   c.Timestamp,
	}
	return pos, &model.TradeRecord{
		ID:         uuid.NewString(),
		UserID:     cfg.UserID,
		StrategyID: cfg.ID,
		Symbol:     cfg.Symbol,
		Side:       side,
		Size:       sig.Size,
		EntryPrice: c.Close,
		OpenedAt:   c.Timestamp,
	}
}

func (s *Simulator) closeAt(pos *model.Position, open *model.TradeRecord, c model.Candle, trades *[]model.TradeRecord) decimal.Decimal {
	pnl := pos.UnrealizedPnL(c.Close)
	rec := *open
	rec.ExitPrice = c.Close
	rec.PnL = pnl
	rec.ClosedAt = c.Timestamp
	rec.Closed = true
	*trades = append(*trades, rec)
	return pnl
}

// clampRange trims a requested window to sane bounds: a zero end means "now".
func clampRange(start, end time.Time) (time.Time, time.Time) {
	if end.IsZero() {
		end = time.Now().UTC()
	}
	return start, end
}
