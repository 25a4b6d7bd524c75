package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"

	"futures-bot/internal/model"
)

// CreateBacktest inserts a queued backtest row.
func (s *Store) CreateBacktest(ctx context.Context, r model.BacktestResult) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO backtest_results (id, user_id, strategy_id, status, initial_balance,
		                              start_time, end_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())`,
		r.ID, r.UserID, r.StrategyID, r.Status, r.InitialBalance, r.Start, r.End)
	return err
}

// SetBacktestStatus records a status transition (queued -> running -> terminal).
func (s *Store) SetBacktestStatus(ctx context.Context, id string, status model.BacktestStatus, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE backtest_results SET status = $2, error = $3 WHERE id = $1`,
		id, status, errMsg)
	return err
}

// CompleteBacktest writes the final balance, metrics, equity curve and
// trade log for a completed run.
func (s *Store) CompleteBacktest(ctx context.Context, r model.BacktestResult) error {
	metrics, err := json.Marshal(r.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	curve, err := json.Marshal(r.EquityCurve)
	if err != nil {
		return fmt.Errorf("marshal equity curve: %w", err)
	}
	trades, err := json.Marshal(r.Trades)
	if err != nil {
		return fmt.Errorf("marshal trades: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE backtest_results
		SET status = $2, final_balance = $3, metrics = $4, equity_curve = $5,
		    trades = $6, finished_at = now()
		WHERE id = $1`,
		r.ID, model.BacktestCompleted, r.FinalBalance, metrics, curve, trades)
	return err
}

// Backtest reads one result row by id.
func (s *Store) Backtest(ctx context.Context, id string) (model.BacktestResult, error) {
	var r model.BacktestResult
	var metrics, curve, trades []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, strategy_id, status, COALESCE(error, ''),
		       initial_balance, COALESCE(final_balance, 0),
		       COALESCE(metrics, 'null'), COALESCE(equity_curve, 'null'),
		       COALESCE(trades, 'null'),
		       start_time, end_time, created_at, COALESCE(finished_at, created_at)
		FROM backtest_results WHERE id = $1`, id).Scan(
		&r.ID, &r.UserID, &r.StrategyID, &r.Status, &r.Error,
		&r.InitialBalance, &r.FinalBalance, &metrics, &curve, &trades,
		&r.Start, &r.End, &r.CreatedAt, &r.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return r, fmt.Errorf("backtest %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return r, err
	}

	if err := json.Unmarshal(metrics, &r.Metrics); err != nil {
		return r, fmt.Errorf("decode metrics: %w", err)
	}
	if err := json.Unmarshal(curve, &r.EquityCurve); err != nil {
		return r, fmt.Errorf("decode equity curve: %w", err)
	}
	if err := json.Unmarshal(trades, &r.Trades); err != nil {
		return r, fmt.Errorf("decode trades: %w", err)
	}
	return r, nil
}
