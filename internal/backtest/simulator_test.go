package backtest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"futures-bot/internal/model"
)

func btCandles(prices ...float64) []model.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Candle, len(prices))
	for i, p := range prices {
		d := decimal.NewFromFloat(p)
		out[i] = model.Candle{
			Symbol:    "BTCUSDT",
			Timeframe: "1h",
			Open:      d, High: d, Low: d, Close: d,
			Volume:    decimal.NewFromInt(1),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func btConfig() model.StrategyConfig {
	return model.StrategyConfig{
		ID:           3,
		UserID:       7,
		Variant:      "ma_cross",
		Symbol:       "BTCUSDT",
		Timeframe:    "1h",
		FastPeriod:   2,
		SlowPeriod:   3,
		PositionSize: decimal.NewFromInt(1),
		Active:       true,
	}
}

func TestSimulator_RoundTripMovesBalanceExactly(t *testing.T) {
	cfg := btConfig()
	cfg.TakeProfitPct = 3

	// Flat run, golden cross at 104, take-profit exit at 110.
	candles := btCandles(100, 100, 100, 100, 104, 110, 110, 110)
	res, err := NewSimulator(zap.NewNop()).Run(context.Background(), cfg, candles, decimal.NewFromInt(1000))
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, model.SideLong, tr.Side)
	assert.True(t, tr.EntryPrice.Equal(decimal.NewFromInt(104)), "filled at the cross candle close, got %s", tr.EntryPrice)
	assert.True(t, tr.ExitPrice.Equal(decimal.NewFromInt(110)))
	assert.True(t, tr.PnL.Equal(decimal.NewFromInt(6)))
	assert.True(t, tr.Closed)

	assert.True(t, res.FinalBalance.Equal(decimal.NewFromInt(1006)), "final balance %s", res.FinalBalance)
	assert.InDelta(t, 0.6, res.Metrics.TotalReturnPct, 1e-9)
	assert.Equal(t, 1, res.Metrics.TotalTrades)
	assert.InDelta(t, 100.0, res.Metrics.WinRatePct, 1e-9)

	require.Len(t, res.EquityCurve, len(candles))
	assert.True(t, res.EquityCurve[0].Equal(decimal.NewFromInt(1000)))
	assert.True(t, res.EquityCurve[len(candles)-1].Equal(decimal.NewFromInt(1006)))
}

func TestSimulator_ForceClosesOpenPositionAtEnd(t *testing.T) {
	// No stop or take-profit configured: the cross entry stays open until
	// the series ends and is liquidated at the last close.
	candles := btCandles(100, 100, 100, 100, 104, 108, 112)
	res, err := NewSimulator(zap.NewNop()).Run(context.Background(), btConfig(), candles, decimal.NewFromInt(1000))
	require.NoError(t, err)

	require.Len(t, res.Trades, 1)
	assert.True(t, res.Trades[0].ExitPrice.Equal(decimal.NewFromInt(112)))
	assert.True(t, res.FinalBalance.Equal(decimal.NewFromInt(1008)))
	assert.True(t, res.EquityCurve[len(res.EquityCurve)-1].Equal(res.FinalBalance))
}

func TestSimulator_NoCandlesFails(t *testing.T) {
	_, err := NewSimulator(zap.NewNop()).Run(context.Background(), btConfig(), nil, decimal.NewFromInt(1000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candles")
}

func TestComputeMetrics_ZeroTrades(t *testing.T) {
	thousand := decimal.NewFromInt(1000)
	m := computeMetrics(thousand, thousand, nil, []decimal.Decimal{thousand, thousand, thousand})
	assert.Zero(t, m.TotalTrades)
	assert.Zero(t, m.WinRatePct)
	assert.Zero(t, m.ProfitFactor)
	assert.Zero(t, m.TotalReturnPct)
	assert.Zero(t, m.SharpeRatio, "flat equity has no volatility")
	assert.Zero(t, m.MaxDrawdownPct)
}

func TestComputeMetrics_MixedTrades(t *testing.T) {
	trades := []model.TradeRecord{
		{PnL: decimal.NewFromInt(30), Closed: true},
		{PnL: decimal.NewFromInt(10), Closed: true},
		{PnL: decimal.NewFromInt(-20), Closed: true},
	}
	eq := []decimal.Decimal{
		decimal.NewFromInt(1000),
		decimal.NewFromInt(1030),
		decimal.NewFromInt(1010),
		decimal.NewFromInt(1020),
	}
	m := computeMetrics(decimal.NewFromInt(1000), decimal.NewFromInt(1020), trades, eq)

	assert.Equal(t, 3, m.TotalTrades)
	assert.InDelta(t, 2.0, m.TotalReturnPct, 1e-9)
	assert.InDelta(t, 66.666666, m.WinRatePct, 1e-4)
	assert.InDelta(t, 2.0, m.ProfitFactor, 1e-9)
	assert.InDelta(t, 20.0, m.AvgWin, 1e-9)
	assert.InDelta(t, -20.0, m.AvgLoss, 1e-9)
	// Trough 1010 against the 1030 peak.
	assert.InDelta(t, (1030.0-1010.0)/1030.0*100, m.MaxDrawdownPct, 1e-9)
}

func TestSharpe_Guards(t *testing.T) {
	assert.Zero(t, sharpe(nil))
	assert.Zero(t, sharpe([]decimal.Decimal{decimal.NewFromInt(1000)}))
	assert.Zero(t, sharpe([]decimal.Decimal{decimal.NewFromInt(1000), decimal.NewFromInt(1000), decimal.NewFromInt(1000)}))
}

type memBacktestStore struct {
	mu      sync.Mutex
	cfg     model.StrategyConfig
	candles []model.Candle
	results map[string]model.BacktestResult
}

func newMemBacktestStore(cfg model.StrategyConfig, candles []model.Candle) *memBacktestStore {
	return &memBacktestStore{cfg: cfg, candles: candles, results: make(map[string]model.BacktestResult)}
}

func (m *memBacktestStore) StrategyConfig(ctx context.Context, id int64) (model.StrategyConfig, error) {
	return m.cfg, nil
}

func (m *memBacktestStore) LoadCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Candle, error) {
	return m.candles, nil
}

func (m *memBacktestStore) CreateBacktest(ctx context.Context, r model.BacktestResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[r.ID] = r
	return nil
}

func (m *memBacktestStore) SetBacktestStatus(ctx context.Context, id string, status model.BacktestStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.results[id]
	r.Status = status
	r.Error = errMsg
	m.results[id] = r
	return nil
}

func (m *memBacktestStore) CompleteBacktest(ctx context.Context, r model.BacktestResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[r.ID] = r
	return nil
}

func (m *memBacktestStore) Backtest(ctx context.Context, id string) (model.BacktestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.results[id], nil
}

func TestRunner_CompletesAsync(t *testing.T) {
	cfg := btConfig()
	cfg.TakeProfitPct = 3
	store := newMemBacktestStore(cfg, btCandles(100, 100, 100, 100, 104, 110))
	runner := NewRunner(store, NewSimulator(zap.NewNop()), zap.NewNop())

	id, err := runner.Enqueue(context.Background(), Request{
		UserID:     7,
		StrategyID: 3,
		Start:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	runner.Wait()

	res, err := runner.Result(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.BacktestCompleted, res.Status)
	assert.Equal(t, 1, res.Metrics.TotalTrades)
	assert.True(t, res.InitialBalance.Equal(defaultInitialBalance), "default balance applied")
}

func TestRunner_FailsOnEmptyRange(t *testing.T) {
	store := newMemBacktestStore(btConfig(), nil)
	runner := NewRunner(store, NewSimulator(zap.NewNop()), zap.NewNop())

	id, err := runner.Enqueue(context.Background(), Request{
		UserID:     7,
		StrategyID: 3,
		Start:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err, "enqueue succeeds, the run itself fails")
	runner.Wait()

	res, err := runner.Result(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.BacktestFailed, res.Status)
	assert.Contains(t, res.Error, "no candles")

	_, err = runner.Enqueue(context.Background(), Request{
		UserID:     7,
		StrategyID: 3,
		Start:      time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err, "inverted range rejected at enqueue")
}

func TestRunner_RejectsForeignStrategy(t *testing.T) {
	// The stored config belongs to user 7; user 8 must not backtest it.
	store := newMemBacktestStore(btConfig(), btCandles(100, 100, 100, 100, 104, 110))
	runner := NewRunner(store, NewSimulator(zap.NewNop()), zap.NewNop())

	id, err := runner.Enqueue(context.Background(), Request{
		UserID:     8,
		StrategyID: 3,
		Start:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	runner.Wait()

	res, err := runner.Result(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.BacktestFailed, res.Status)
	assert.Contains(t, res.Error, "does not belong to user 8")
}
