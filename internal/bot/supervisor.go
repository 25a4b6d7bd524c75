package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"futures-bot/internal/buffer"
	"futures-bot/internal/exchange"
	"futures-bot/internal/executor"
	"futures-bot/internal/infrastructure"
	"futures-bot/internal/model"
	"futures-bot/internal/strategy"
)

// ErrAlreadyRunning is returned when a start request hits an occupied
// user slot, including one still draining through `stopping`.
var ErrAlreadyRunning = errors.New("bot already running for user")

// Store is the persistence surface the supervisor needs.
type Store interface {
	StrategyConfig(ctx context.Context, id int64) (model.StrategyConfig, error)
	BotRunState(ctx context.Context, userID int64) (model.BotRunState, error)
	SaveBotRunState(ctx context.Context, st model.BotRunState) error
	Credentials(ctx context.Context, userID int64) (exchange.Credentials, error)
}

// CandleSource hands out one independent candle subscription per
// consumer. Fan-out, not fan-in: a slow consumer never blocks another.
type CandleSource interface {
	Subscribe(symbol, timeframe string) (<-chan model.Candle, func(), error)
}

// ClientFactory builds an exchange client bound to one user's credentials.
type ClientFactory func(creds exchange.Credentials) exchange.Client

// StopResult reports the outcome of a stop request, including how the
// forced liquidation went. Callers need the counts to know whether
// manual intervention is required. PositionsFailed is -1 when the open
// positions could not be enumerated at all: the failure count is then
// unknown, which is worse than zero, and Message says so.
type StopResult struct {
	Stopped         bool   `json:"stopped"`
	PositionsClosed int    `json:"positions_closed"`
	PositionsFailed int    `json:"positions_failed"`
	Message         string `json:"message"`
}

// Options tune per-run behavior.
type Options struct {
	CandleCapacity int
	OrderRetries   int
	TickTimeout    time.Duration
	// LiquidationTimeout bounds the forced close on stop. The stop
	// context is never used for liquidation: a cancelled stop must not
	// abort in-flight closing orders.
	LiquidationTimeout time.Duration
}

func (o *Options) defaults() {
	if o.CandleCapacity <= 0 {
		o.CandleCapacity = 200
	}
	if o.OrderRetries <= 0 {
		o.OrderRetries = 3
	}
	if o.TickTimeout <= 0 {
		o.TickTimeout = 60 * time.Second
	}
	if o.LiquidationTimeout <= 0 {
		o.LiquidationTimeout = 30 * time.Second
	}
}

// Supervisor owns one execution unit per active user. The persisted
// BotRunState row is the source of truth for occupancy; the in-memory
// runner map holds the live handles.
type Supervisor struct {
	store   Store
	source  CandleSource
	clients ClientFactory
	trades  executor.TradeLog
	logger  *zap.Logger
	opts    Options

	mu      sync.Mutex
	runners map[int64]*runner
}

func NewSupervisor(store Store, source CandleSource, clients ClientFactory, trades executor.TradeLog, logger *zap.Logger, opts Options) *Supervisor {
	opts.defaults()
	return &Supervisor{
		store:   store,
		source:  source,
		clients: clients,
		trades:  trades,
		logger:  logger,
		opts:    opts,
		runners: make(map[int64]*runner),
	}
}

// reserve claims the user's slot before any other start work happens.
// A nil entry marks a start in progress; the slot is released on failure
// and replaced with the live runner on success. This is the only gate
// against two concurrent starts for one user: the persisted-state check
// below guards restarts across processes, not races within this one.
func (s *Supervisor) reserve(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runners[userID]; ok {
		return ErrAlreadyRunning
	}
	s.runners[userID] = nil
	return nil
}

func (s *Supervisor) release(userID int64) {
	s.mu.Lock()
	delete(s.runners, userID)
	s.mu.Unlock()
}

func (s *Supervisor) commit(userID int64, r *runner) {
	s.mu.Lock()
	s.runners[userID] = r
	s.mu.Unlock()
}

// Start launches the execution unit for (user, strategy). It fails fast
// on an occupied slot, missing credentials, inactive strategy, or an
// unknown variant tag, before any goroutine is created.
func (s *Supervisor) Start(ctx context.Context, userID, strategyID int64) (model.BotRunState, error) {
	if err := s.reserve(userID); err != nil {
		return model.BotRunState{}, err
	}

	persisted, err := s.store.BotRunState(ctx, userID)
	if err != nil {
		s.release(userID)
		return model.BotRunState{}, fmt.Errorf("read run state: %w", err)
	}
	if persisted.Running() {
		s.release(userID)
		return model.BotRunState{}, ErrAlreadyRunning
	}

	cfg, err := s.store.StrategyConfig(ctx, strategyID)
	if err != nil {
		s.release(userID)
		return model.BotRunState{}, err
	}
	if cfg.UserID != userID {
		s.release(userID)
		return model.BotRunState{}, fmt.Errorf("strategy %d does not belong to user %d", strategyID, userID)
	}
	if !cfg.Active {
		s.release(userID)
		return model.BotRunState{}, fmt.Errorf("strategy %d is not active", strategyID)
	}

	strat, err := strategy.New(cfg)
	if err != nil {
		s.release(userID)
		return model.BotRunState{}, err
	}

	creds, err := s.store.Credentials(ctx, userID)
	if err != nil {
		s.release(userID)
		return model.BotRunState{}, err
	}
	client := s.clients(creds)

	state := model.BotRunState{
		UserID:     userID,
		StrategyID: strategyID,
		State:      model.BotStarting,
		StartedAt:  time.Now(),
	}
	if err := s.store.SaveBotRunState(ctx, state); err != nil {
		s.release(userID)
		return model.BotRunState{}, fmt.Errorf("persist run state: %w", err)
	}

	buf := buffer.New(s.opts.CandleCapacity)
	seed, err := client.Candles(ctx, cfg.Symbol, cfg.Timeframe, s.opts.CandleCapacity)
	if err != nil {
		// Degraded start: the buffer fills from live ticks and the
		// strategy holds until it has enough history.
		s.logger.Warn("historical seed fetch failed, starting with empty buffer",
			zap.Int64("user_id", userID),
			zap.String("symbol", cfg.Symbol),
			zap.Error(err),
		)
	} else {
		buf.Seed(seed)
	}

	candles, unsubscribe, err := s.source.Subscribe(cfg.Symbol, cfg.Timeframe)
	if err != nil {
		state.State = model.BotStopped
		state.Message = "failed to subscribe to market data"
		_ = s.store.SaveBotRunState(ctx, state)
		s.release(userID)
		return model.BotRunState{}, fmt.Errorf("subscribe market data: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &runner{
		cfg:         cfg,
		strat:       strat,
		exec:        executor.New(client, s.trades, s.logger, userID, strategyID, s.opts.OrderRetries),
		buf:         buf,
		candles:     candles,
		unsubscribe: unsubscribe,
		cancel:      cancel,
		done:        make(chan struct{}),
		logger:      s.logger,
		tickTimeout: s.opts.TickTimeout,
		started:     state.StartedAt,
	}

	s.commit(userID, r)

	state.State = model.BotRunning
	if err := s.store.SaveBotRunState(ctx, state); err != nil {
		s.logger.Error("failed to persist running state", zap.Error(err))
	}

	go r.loop(runCtx)
	go s.watch(userID, r)
	infrastructure.ActiveBots.Inc()

	s.logger.Info("bot started",
		zap.Int64("user_id", userID),
		zap.Int64("strategy_id", strategyID),
		zap.String("variant", cfg.Variant),
		zap.String("symbol", cfg.Symbol),
		zap.Int("seeded_candles", buf.Len()),
	)
	return state, nil
}

// Stop drains the user's execution unit. The mid-wait tick loop is
// interrupted immediately, but liquidation always runs to completion on
// its own context. Stop never returns an unhandled failure: the result
// reports how many positions closed vs failed.
func (s *Supervisor) Stop(ctx context.Context, userID int64) (StopResult, error) {
	s.mu.Lock()
	r, ok := s.runners[userID]
	s.mu.Unlock()

	if !ok {
		return StopResult{Stopped: true, Message: "bot not running"}, nil
	}
	if r == nil {
		// Slot reserved by an in-flight Start that has not committed yet.
		return StopResult{Message: "bot is starting, retry stop"}, nil
	}
	if !r.beginStop() {
		return StopResult{Message: "stop already in progress"}, nil
	}

	return s.drain(ctx, userID, r, ""), nil
}

// drain runs the stopping -> liquidate -> stopped sequence.
func (s *Supervisor) drain(ctx context.Context, userID int64, r *runner, cause string) StopResult {
	state := model.BotRunState{
		UserID:     userID,
		StrategyID: r.cfg.ID,
		State:      model.BotStopping,
		StartedAt:  r.startedAt(),
	}
	if err := s.store.SaveBotRunState(ctx, state); err != nil {
		s.logger.Error("failed to persist stopping state", zap.Error(err))
	}

	// Interrupt the wait-for-tick immediately and wait for the loop to
	// exit so no evaluation races the liquidation below.
	r.cancel()
	<-r.done
	r.unsubscribe()

	// Liquidation gets a fresh context: the caller's cancellation must
	// not abort in-flight closing orders.
	liqCtx, cancel := context.WithTimeout(context.Background(), s.opts.LiquidationTimeout)
	defer cancel()
	closed, failed, liqErr := r.exec.CloseAllPositions(liqCtx)

	message := fmt.Sprintf("stopped, closed %d of %d positions", closed, closed+failed)
	if liqErr != nil {
		// The sweep could not even list open positions: the counts are
		// unknown, not zero. Surface that instead of a clean stop.
		failed = -1
		message = "stopped, could not enumerate open positions for liquidation; manual intervention required"
	}
	if cause != "" {
		message = cause + "; " + message
	}

	state.State = model.BotStopped
	state.Message = message
	if err := s.store.SaveBotRunState(ctx, state); err != nil {
		s.logger.Error("failed to persist stopped state", zap.Error(err))
	}

	s.mu.Lock()
	delete(s.runners, userID)
	s.mu.Unlock()
	infrastructure.ActiveBots.Dec()

	s.logger.Info("bot stopped",
		zap.Int64("user_id", userID),
		zap.Int("positions_closed", closed),
		zap.Int("positions_failed", failed),
		zap.String("cause", cause),
	)
	return StopResult{
		Stopped:         true,
		PositionsClosed: closed,
		PositionsFailed: failed,
		Message:         message,
	}
}

// watch drains the unit when the loop exits on its own, which only
// happens on a fatal credential failure.
func (s *Supervisor) watch(userID int64, r *runner) {
	<-r.done
	if !r.beginStop() {
		return // a Stop call owns the drain
	}

	cause := "stopped: exchange rejected credentials"
	if err := r.fatalErr(); err != nil {
		cause = "stopped: " + err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.LiquidationTimeout)
	defer cancel()
	s.drain(ctx, userID, r, cause)
}

// Status reports the persisted run state for a user.
func (s *Supervisor) Status(ctx context.Context, userID int64) (model.BotRunState, error) {
	return s.store.BotRunState(ctx, userID)
}
