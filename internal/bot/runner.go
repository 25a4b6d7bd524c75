package bot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"futures-bot/internal/buffer"
	"futures-bot/internal/executor"
	"futures-bot/internal/infrastructure"
	"futures-bot/internal/model"
	"futures-bot/internal/strategy"
)

// runner is one user's execution unit: a single goroutine that owns the
// candle buffer and position state exclusively. Ticks are processed
// strictly in arrival order; every evaluation sees a snapshot holding
// all candles received before it began.
type runner struct {
	cfg         model.StrategyConfig
	strat       strategy.Strategy
	exec        *executor.Executor
	buf         *buffer.CandleBuffer
	candles     <-chan model.Candle
	unsubscribe func()
	cancel      context.CancelFunc
	done        chan struct{}
	logger      *zap.Logger
	tickTimeout time.Duration

	started  time.Time
	stopping atomic.Bool

	mu    sync.Mutex
	pos   *model.Position
	fatal error
}

// beginStop claims the right to drain this runner. Exactly one caller
// wins between Stop and the fatal-error watchdog.
func (r *runner) beginStop() bool {
	return r.stopping.CompareAndSwap(false, true)
}

func (r *runner) startedAt() time.Time {
	if r.started.IsZero() {
		return time.Now()
	}
	return r.started
}

func (r *runner) fatalErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fatal
}

func (r *runner) position() *model.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}

func (r *runner) setPosition(p *model.Position) {
	r.mu.Lock()
	r.pos = p
	r.mu.Unlock()
}

// loop is the per-tick evaluate/execute cycle. It returns when the run
// context is cancelled or a fatal error stops the bot; the supervisor
// handles liquidation after the loop has fully exited.
func (r *runner) loop(ctx context.Context) {
	defer close(r.done)

	stale := time.NewTimer(r.tickTimeout)
	defer stale.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case candle, ok := <-r.candles:
			if !ok {
				r.logger.Warn("candle subscription closed",
					zap.Int64("user_id", r.cfg.UserID))
				return
			}
			if !stale.Stop() {
				select {
				case <-stale.C:
				default:
				}
			}
			stale.Reset(r.tickTimeout)

			if fatal := r.handle(ctx, candle); fatal {
				return
			}
		case <-stale.C:
			// Data staleness is a warning, not a failure: keep waiting.
			infrastructure.StaleFeeds.WithLabelValues(r.cfg.Symbol).Inc()
			r.logger.Warn("no market data received within timeout",
				zap.Int64("user_id", r.cfg.UserID),
				zap.String("symbol", r.cfg.Symbol),
				zap.Duration("timeout", r.tickTimeout),
			)
			stale.Reset(r.tickTimeout)
		}
	}
}

// handle processes a single candle. Returns true when the bot must stop.
func (r *runner) handle(ctx context.Context, candle model.Candle) bool {
	if candle.Symbol != r.cfg.Symbol || candle.Timeframe != r.cfg.Timeframe {
		return false
	}

	r.buf.Push(candle)
	infrastructure.CandlesProcessed.WithLabelValues(candle.Symbol, candle.Timeframe).Inc()

	snapshot := r.buf.Snapshot()
	pos := r.position()
	sig := r.strat.Evaluate(snapshot, pos)
	if sig.Action == model.ActionHold {
		return false
	}

	out := r.exec.Execute(ctx, sig, r.cfg.Symbol, pos, candle.Close)
	r.applyOutcome(out, sig)
	return out.Fatal != nil
}

func (r *runner) applyOutcome(out executor.Outcome, sig model.Signal) {
	if out.Fatal != nil {
		r.mu.Lock()
		r.fatal = out.Fatal
		r.mu.Unlock()
		return
	}
	if out.Skipped != "" {
		r.logger.Debug("signal discarded",
			zap.Int64("user_id", r.cfg.UserID),
			zap.String("action", string(sig.Action)),
			zap.String("skipped", out.Skipped),
		)
	}
	r.setPosition(out.Position)
}
