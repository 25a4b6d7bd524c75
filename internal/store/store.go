package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"futures-bot/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the Postgres repository shared by the supervisor and the
// backtest runner. Every query is scoped by user_id; no invariant spans
// users, so no cross-user locking exists here.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// StrategyConfig reads one strategy row by id.
func (s *Store) StrategyConfig(ctx context.Context, id int64) (model.StrategyConfig, error) {
	var cfg model.StrategyConfig
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, name, variant, symbol, timeframe, fast_period, slow_period,
		       stop_loss_pct, take_profit_pct, cooldown_candles, min_confidence,
		       position_size, active, created_at
		FROM strategy_configs WHERE id = $1`, id).Scan(
		&cfg.ID, &cfg.UserID, &cfg.Name, &cfg.Variant, &cfg.Symbol, &cfg.Timeframe,
		&cfg.FastPeriod, &cfg.SlowPeriod, &cfg.StopLossPct, &cfg.TakeProfitPct,
		&cfg.CooldownCandles, &cfg.MinConfidence, &cfg.PositionSize, &cfg.Active, &cfg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return cfg, fmt.Errorf("strategy %d: %w", id, ErrNotFound)
	}
	return cfg, err
}

// BotRunState reads the persisted run state for a user.
func (s *Store) BotRunState(ctx context.Context, userID int64) (model.BotRunState, error) {
	var st model.BotRunState
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, strategy_id, state, message, started_at, updated_at
		FROM bot_run_states WHERE user_id = $1`, userID).Scan(
		&st.UserID, &st.StrategyID, &st.State, &st.Message, &st.StartedAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.BotRunState{UserID: userID, State: model.BotStopped}, nil
	}
	return st, err
}

// SaveBotRunState upserts the authoritative run state row.
func (s *Store) SaveBotRunState(ctx context.Context, st model.BotRunState) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO bot_run_states (user_id, strategy_id, state, message, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (user_id) DO UPDATE SET
			strategy_id = EXCLUDED.strategy_id,
			state = EXCLUDED.state,
			message = EXCLUDED.message,
			started_at = EXCLUDED.started_at,
			updated_at = now()`,
		st.UserID, st.StrategyID, st.State, st.Message, st.StartedAt)
	return err
}

// CreateTradeRecord inserts the entry half of a trade.
func (s *Store) CreateTradeRecord(ctx context.Context, tr model.TradeRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trade_records (id, user_id, strategy_id, symbol, side, size,
		                           entry_price, opened_at, closed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false)`,
		tr.ID, tr.UserID, tr.StrategyID, tr.Symbol, tr.Side, tr.Size, tr.EntryPrice, tr.OpenedAt)
	return err
}

// CloseTradeRecord finalizes the open trade for (user, symbol) with exit
// price and pnl.
func (s *Store) CloseTradeRecord(ctx context.Context, tr model.TradeRecord) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE trade_records
		SET exit_price = $3, pnl = $4, closed_at = $5, closed = true
		WHERE user_id = $1 AND symbol = $2 AND closed = false`,
		tr.UserID, tr.Symbol, tr.ExitPrice, tr.PnL, tr.ClosedAt)
	return err
}

// TradeRecords lists a user's trades, newest first.
func (s *Store) TradeRecords(ctx context.Context, userID int64, limit int) ([]model.TradeRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, strategy_id, symbol, side, size, entry_price,
		       COALESCE(exit_price, 0), COALESCE(pnl, 0), opened_at,
		       COALESCE(closed_at, opened_at), closed
		FROM trade_records WHERE user_id = $1
		ORDER BY opened_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.TradeRecord
	for rows.Next() {
		var tr model.TradeRecord
		if err := rows.Scan(&tr.ID, &tr.UserID, &tr.StrategyID, &tr.Symbol, &tr.Side,
			&tr.Size, &tr.EntryPrice, &tr.ExitPrice, &tr.PnL, &tr.OpenedAt,
			&tr.ClosedAt, &tr.Closed); err != nil {
			return nil, err
		}
		trades = append(trades, tr)
	}
	return trades, rows.Err()
}

// LoadCandles reads historical candles for backtests, oldest first.
func (s *Store) LoadCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]model.Candle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT symbol, timeframe, open, high, low, close, volume, time
		FROM candles
		WHERE symbol = $1 AND timeframe = $2 AND time >= $3 AND time <= $4
		ORDER BY time ASC`,
		symbol, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []model.Candle
	for rows.Next() {
		var c model.Candle
		if err := rows.Scan(&c.Symbol, &c.Timeframe, &c.Open, &c.High, &c.Low,
			&c.Close, &c.Volume, &c.Timestamp); err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// SaveCandle upserts one closed candle, unique per (symbol, timeframe, time).
func (s *Store) SaveCandle(ctx context.Context, c model.Candle) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO candles (symbol, timeframe, open, high, low, close, volume, time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, timeframe, time) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
			close = EXCLUDED.close, volume = EXCLUDED.volume`,
		c.Symbol, c.Timeframe, c.Open, c.High, c.Low, c.Close, c.Volume, c.Timestamp)
	return err
}
