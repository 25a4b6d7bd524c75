package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futures-bot/internal/exchange"
	"futures-bot/internal/infrastructure"
	"futures-bot/internal/model"
)

// TradeLog persists trade records. Entry rows are written on fill,
// finalized with exit price and pnl on close.
type TradeLog interface {
	CreateTradeRecord(ctx context.Context, tr model.TradeRecord) error
	CloseTradeRecord(ctx context.Context, tr model.TradeRecord) error
}

// Outcome tells the supervisor what happened to one signal. Exactly one
// of the fields matters per case: Fatal stops the bot, Skipped discards
// the tick, otherwise Position reflects the post-execution state.
type Outcome struct {
	Executed bool
	Position *model.Position
	Skipped  string
	Fatal    error
}

// Executor turns signals into exchange orders for one bot run.
type Executor struct {
	client     exchange.Client
	trades     TradeLog
	logger     *zap.Logger
	userID     int64
	strategyID int64
	retries    int
	backoff    time.Duration
}

func New(client exchange.Client, trades TradeLog, logger *zap.Logger, userID, strategyID int64, retries int) *Executor {
	if retries <= 0 {
		retries = 3
	}
	return &Executor{
		client:     client,
		trades:     trades,
		logger:     logger,
		userID:     userID,
		strategyID: strategyID,
		retries:    retries,
		backoff:    500 * time.Millisecond,
	}
}

// Execute runs one signal against the exchange. mark is the close of the
// evaluated candle, used as the recorded price when the venue ack does
// not carry one. One failed order never crashes the execution unit; the
// caller continues with the next tick unless Fatal is set.
func (e *Executor) Execute(ctx context.Context, sig model.Signal, symbol string, pos *model.Position, mark decimal.Decimal) Outcome {
	switch sig.Action {
	case model.ActionHold:
		return Outcome{Position: pos}
	case model.ActionBuy, model.ActionSell:
		if pos != nil {
			// Invariant: at most one open position per (user, symbol).
			return Outcome{Position: pos, Skipped: "position already open"}
		}
		return e.open(ctx, sig, symbol, mark)
	case model.ActionClose:
		if pos == nil {
			return Outcome{Skipped: "no position to close"}
		}
		return e.closePosition(ctx, symbol, pos, mark)
	default:
		return Outcome{Position: pos, Skipped: "unknown action"}
	}
}

func (e *Executor) open(ctx context.Context, sig model.Signal, symbol string, mark decimal.Decimal) Outcome {
	side := model.SideLong
	if sig.Action == model.ActionSell {
		side = model.SideShort
	}

	res, err := e.placeWithRetry(ctx, func(ctx context.Context) (exchange.OrderResult, error) {
		return e.client.PlaceOrder(ctx, exchange.OrderRequest{
			Symbol:    symbol,
			Side:      side,
			Size:      sig.Size,
			OrderType: "market",
			ClientID:  uuid.NewString(),
		})
	})
	if err != nil {
		return e.failure(err, "entry order failed")
	}

	entryPrice := res.AvgPrice
	if entryPrice.Sign() <= 0 {
		entryPrice = mark
	}

	pos := &model.Position{
		Symbol:     symbol,
		Side:       side,
		Size:       sig.Size,
		EntryPrice: entryPrice,
		OpenedAt:   time.Now(),
	}

	record := model.TradeRecord{
		ID:         uuid.NewString(),
		UserID:     e.userID,
		StrategyID: e.strategyID,
		Symbol:     symbol,
		Side:       side,
		Size:       sig.Size,
		EntryPrice: entryPrice,
		OpenedAt:   pos.OpenedAt,
	}
	if err := e.trades.CreateTradeRecord(ctx, record); err != nil {
		e.logger.Error("failed to store trade record", zap.Error(err))
	}

	infrastructure.OrdersPlaced.WithLabelValues(symbol, string(sig.Action)).Inc()
	e.logger.Info("position opened",
		zap.Int64("user_id", e.userID),
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("size", sig.Size.String()),
		zap.String("entry_price", entryPrice.String()),
		zap.String("reason", sig.Reason),
	)
	return Outcome{Executed: true, Position: pos}
}

func (e *Executor) closePosition(ctx context.Context, symbol string, pos *model.Position, mark decimal.Decimal) Outcome {
	// Re-query the venue for the exact size: partial fills and funding
	// adjustments drift away from local state.
	size := pos.Size
	venuePositions, err := e.client.Positions(ctx, symbol)
	if err != nil {
		e.logger.Warn("position size re-query failed, using local size", zap.Error(err))
	} else {
		found := false
		for _, vp := range venuePositions {
			if vp.Symbol == symbol && vp.Side == pos.Side {
				size = vp.Size
				found = true
				break
			}
		}
		if !found {
			// Venue says flat: nothing to close, drop local state.
			e.logger.Warn("no venue position to close, clearing local state",
				zap.Int64("user_id", e.userID), zap.String("symbol", symbol))
			return Outcome{Skipped: "position not found on venue"}
		}
	}

	res, err := e.placeWithRetry(ctx, func(ctx context.Context) (exchange.OrderResult, error) {
		return e.client.ClosePosition(ctx, symbol, pos.Side, size)
	})
	if err != nil {
		out := e.failure(err, "close order failed")
		out.Position = pos
		return out
	}

	exitPrice := res.AvgPrice
	if exitPrice.Sign() <= 0 {
		exitPrice = mark
	}
	closedPos := *pos
	closedPos.Size = size
	pnl := closedPos.UnrealizedPnL(exitPrice)

	record := model.TradeRecord{
		UserID:    e.userID,
		Symbol:    symbol,
		ExitPrice: exitPrice,
		PnL:       pnl,
		ClosedAt:  time.Now(),
	}
	if err := e.trades.CloseTradeRecord(ctx, record); err != nil {
		e.logger.Error("failed to finalize trade record", zap.Error(err))
	}

	infrastructure.OrdersPlaced.WithLabelValues(symbol, "close").Inc()
	e.logger.Info("position closed",
		zap.Int64("user_id", e.userID),
		zap.String("symbol", symbol),
		zap.String("exit_price", exitPrice.String()),
		zap.String("pnl", pnl.String()),
	)
	return Outcome{Executed: true}
}

// CloseAllPositions liquidates every open position for this user's
// account. Used on bot stop; per-position failures are counted, never
// raised. The listing itself is retried with the same backoff discipline
// as orders: a non-nil error means the open positions could not be
// enumerated at all and the caller must not report a clean stop.
func (e *Executor) CloseAllPositions(ctx context.Context) (closed, failed int, err error) {
	positions, err := e.listWithRetry(ctx)
	if err != nil {
		e.logger.Error("failed to list positions for liquidation", zap.Error(err))
		return 0, 0, err
	}

	for _, pos := range positions {
		p := pos
		out := e.closePosition(ctx, p.Symbol, &p, p.EntryPrice)
		if out.Executed {
			closed++
		} else {
			failed++
			e.logger.Error("liquidation failed",
				zap.Int64("user_id", e.userID),
				zap.String("symbol", p.Symbol),
				zap.String("skipped", out.Skipped),
				zap.Error(out.Fatal),
			)
		}
	}
	return closed, failed, nil
}

// listWithRetry fetches the account's open positions, retrying transient
// failures like placeWithRetry does for orders.
func (e *Executor) listWithRetry(ctx context.Context) ([]model.Position, error) {
	var lastErr error
	delay := e.backoff

	for attempt := 0; attempt < e.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		positions, err := e.client.Positions(ctx, "")
		if err == nil {
			return positions, nil
		}
		lastErr = err

		if !exchange.Retryable(err) {
			return nil, err
		}
		e.logger.Warn("retryable position listing failure",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", e.retries),
			zap.Error(err),
		)
	}
	return nil, lastErr
}

// placeWithRetry retries transient failures with exponential backoff.
// Non-retryable errors surface immediately.
func (e *Executor) placeWithRetry(ctx context.Context, place func(context.Context) (exchange.OrderResult, error)) (exchange.OrderResult, error) {
	var lastErr error
	delay := e.backoff

	for attempt := 0; attempt < e.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return exchange.OrderResult{}, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		res, err := place(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !exchange.Retryable(err) {
			return exchange.OrderResult{}, err
		}
		e.logger.Warn("retryable order failure",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", e.retries),
			zap.Error(err),
		)
	}
	return exchange.OrderResult{}, lastErr
}

// failure maps an order error to an outcome per the error taxonomy:
// auth is fatal, everything else discards the signal for this tick.
func (e *Executor) failure(err error, context string) Outcome {
	kind := exchange.KindOf(err)
	infrastructure.OrderErrors.WithLabelValues(kind.String()).Inc()

	if kind == exchange.KindAuth {
		e.logger.Error("fatal credential failure", zap.Error(err))
		return Outcome{Fatal: err}
	}

	e.logger.Warn(context,
		zap.Int64("user_id", e.userID),
		zap.String("kind", kind.String()),
		zap.Error(err),
	)
	return Outcome{Skipped: kind.String() + ": " + err.Error()}
}
