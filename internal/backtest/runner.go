package backtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futures-bot/internal/infrastructure"
	"futures-bot/internal/model"
)

// Store is the persistence surface the runner needs.
type Store interface {
	StrategyConfig(ctx context.Context, id int64) (model.StrategyConfig, error)
	LoadCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Candle, error)
	CreateBacktest(ctx context.Context, r model.BacktestResult) error
	SetBacktestStatus(ctx context.Context, id string, status model.BacktestStatus, errMsg string) error
	CompleteBacktest(ctx context.Context, r model.BacktestResult) error
	Backtest(ctx context.Context, id string) (model.BacktestResult, error)
}

// Request describes one backtest submission.
type Request struct {
	UserID         int64
	StrategyID     int64
	Start          time.Time
	End            time.Time
	InitialBalance decimal.Decimal
}

var defaultInitialBalance = decimal.NewFromInt(10000)

// Runner executes backtests asynchronously. Enqueue persists a queued record
// and returns its id immediately; the caller polls Result until the status is
// terminal. Runs use their own background context so an aborted HTTP request
// does not kill an in-flight simulation.
type Runner struct {
	store  Store
	sim    *Simulator
	logger *zap.Logger
	// sem bounds concurrent simulations; queued runs wait their turn.
	sem chan struct{}
	wg  sync.WaitGroup
}

func NewRunner(store Store, sim *Simulator, logger *zap.Logger) *Runner {
	return &Runner{
		store:  store,
		sim:    sim,
		logger: logger,
		sem:    make(chan struct{}, 4),
	}
}

func (r *Runner) Enqueue(ctx context.Context, req Request) (string, error) {
	if req.InitialBalance.Sign() <= 0 {
		req.InitialBalance = defaultInitialBalance
	}
	req.Start, req.End = clampRange(req.Start, req.End)
	if !req.End.After(req.Start) {
		return "", fmt.Errorf("backtest range is empty: start %s, end %s", req.Start, req.End)
	}

	rec := model.BacktestResult{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		StrategyID:     req.StrategyID,
		Status:         model.BacktestQueued,
		InitialBalance: req.InitialBalance,
		Start:          req.Start,
		End:            req.End,
		CreatedAt:      time.Now().UTC(),
	}
	if err := r.store.CreateBacktest(ctx, rec); err != nil {
		return "", fmt.Errorf("create backtest: %w", err)
	}

	r.wg.Add(1)
	go r.run(rec.ID, req)
	return rec.ID, nil
}

func (r *Runner) Result(ctx context.Context, id string) (model.BacktestResult, error) {
	return r.store.Backtest(ctx, id)
}

// Wait blocks until all in-flight runs finish. Used on shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) run(id string, req Request) {
	defer r.wg.Done()
	r.sem <- struct{}{}
	defer func() { <-r.sem }()
	ctx := context.Background()

	if err := r.store.SetBacktestStatus(ctx, id, model.BacktestRunning, ""); err != nil {
		r.logger.Error("mark backtest running", zap.String("id", id), zap.Error(err))
		return
	}

	cfg, err := r.store.StrategyConfig(ctx, req.StrategyID)
	if err != nil {
		r.fail(ctx, id, fmt.Errorf("load strategy %d: %w", req.StrategyID, err))
		return
	}
	if cfg.UserID != req.UserID {
		r.fail(ctx, id, fmt.Errorf("strategy %d does not belong to user %d", req.StrategyID, req.UserID))
		return
	}
	candles, err := r.store.LoadCandles(ctx, cfg.Symbol, cfg.Timeframe, req.Start, req.End)
	if err != nil {
		r.fail(ctx, id, fmt.Errorf("load candles: %w", err))
		return
	}

	result, err := r.sim.Run(ctx, cfg, candles, req.InitialBalance)
	if err != nil {
		r.fail(ctx, id, err)
		return
	}

	result.ID = id
	result.UserID = req.UserID
	result.StrategyID = req.StrategyID
	result.Start = req.Start
	result.End = req.End
	result.FinishedAt = time.Now().UTC()
	if err := r.store.CompleteBacktest(ctx, result); err != nil {
		r.logger.Error("persist backtest result", zap.String("id", id), zap.Error(err))
		return
	}
	infrastructure.BacktestsRun.WithLabelValues(string(model.BacktestCompleted)).Inc()
	r.logger.Info("backtest completed",
		zap.String("id", id),
		zap.Int64("strategy_id", req.StrategyID),
		zap.Int("trades", result.Metrics.TotalTrades),
		zap.Float64("return_pct", result.Metrics.TotalReturnPct))
}

func (r *Runner) fail(ctx context.Context, id string, cause error) {
	infrastructure.BacktestsRun.WithLabelValues(string(model.BacktestFailed)).Inc()
	r.logger.Warn("backtest failed", zap.String("id", id), zap.Error(cause))
	if err := r.store.SetBacktestStatus(ctx, id, model.BacktestFailed, cause.Error()); err != nil {
		r.logger.Error("mark backtest failed", zap.String("id", id), zap.Error(err))
	}
}
