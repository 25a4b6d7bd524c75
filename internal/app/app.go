package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"futures-bot/api"
	"futures-bot/internal/backtest"
	"futures-bot/internal/bot"
	"futures-bot/internal/config"
	"futures-bot/internal/exchange"
	"futures-bot/internal/feed"
	"futures-bot/internal/infrastructure"
	"futures-bot/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// App defines the application structure and its dependencies
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	DB         *pgxpool.Pool
	NC         *nats.Conn
	JS         nats.JetStreamContext
	Store      *store.Store
	Supervisor *bot.Supervisor
	Backtests  *backtest.Runner
	Connector  *feed.BitgetConnector
	HTTPServer *http.Server

	stopFeed context.CancelFunc
}

// NewApp creates a new application instance
func NewApp() (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	infrastructure.Init()
	logger := infrastructure.Logger

	return &App{
		Config: &cfg,
		Logger: logger,
	}, nil
}

// Init initializes all application components
func (a *App) Init(ctx context.Context) error {
	// 1. Database
	dbPool, err := pgxpool.Connect(ctx, a.Config.DB_DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DB = dbPool
	a.Store = store.New(dbPool)

	if err := a.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	// 2. NATS
	nc, js, err := infrastructure.InitNATS(a.Config.NatsURL, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	a.NC = nc
	a.JS = js

	// 3. Market data feed
	a.Connector = feed.NewBitgetConnector(a.Config.ExchangeWSURL, a.feedSubs(), js, a.Store, a.Logger)

	// 4. Services
	clientFactory := func(creds exchange.Credentials) exchange.Client {
		return exchange.NewBitgetClient(a.Config.ExchangeRestURL, creds, a.Logger)
	}
	a.Supervisor = bot.NewSupervisor(
		a.Store,
		feed.NewSubscriber(js, a.Logger),
		clientFactory,
		a.Store,
		a.Logger,
		bot.Options{
			CandleCapacity:     a.Config.CandleCapacity,
			OrderRetries:       a.Config.OrderRetries,
			TickTimeout:        time.Duration(a.Config.TickTimeoutSec) * time.Second,
			LiquidationTimeout: time.Duration(a.Config.LiquidationTimeoutSec) * time.Second,
		},
	)
	a.Backtests = backtest.NewRunner(a.Store, backtest.NewSimulator(a.Logger), a.Logger)

	return nil
}

// Run starts the application services and the HTTP server
func (a *App) Run(ctx context.Context) error {
	feedCtx, cancel := context.WithCancel(ctx)
	a.stopFeed = cancel
	go a.Connector.Run(feedCtx)

	a.HTTPServer = &http.Server{
		Addr:    ":" + a.Config.Port,
		Handler: a.setupRouter(),
	}

	go func() {
		a.Logger.Info("starting http server", zap.String("port", a.Config.Port))
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	return a.waitForShutdown()
}

// waitForShutdown handles graceful shutdown signals
func (a *App) waitForShutdown() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	a.Logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.stopFeed()
	a.Backtests.Wait()
	a.NC.Close()
	a.DB.Close()

	return nil
}

// initDatabase runs the database initialization script
func (a *App) initDatabase(ctx context.Context) error {
	sqlFile := "scripts/init.sql"
	content, err := os.ReadFile(sqlFile)
	if err != nil {
		return fmt.Errorf("failed to read init script: %w", err)
	}

	_, err = a.DB.Exec(ctx, string(content))
	if err != nil {
		return fmt.Errorf("failed to execute init script: %w", err)
	}

	a.Logger.Info("database initialized successfully")
	return nil
}

// feedSubs expands the configured symbol and timeframe lists into one
// subscription per pair.
func (a *App) feedSubs() []feed.Sub {
	var subs []feed.Sub
	for _, symbol := range strings.Split(a.Config.FeedSymbols, ",") {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		for _, tf := range strings.Split(a.Config.FeedTimeframes, ",") {
			tf = strings.TrimSpace(tf)
			if tf == "" {
				continue
			}
			subs = append(subs, feed.Sub{Symbol: symbol, Timeframe: tf})
		}
	}
	return subs
}

// setupRouter configures the Gin router and its routes
func (a *App) setupRouter() *gin.Engine {
	r := gin.Default()

	handler := api.NewHandler(a.Supervisor, a.Backtests, a.Store, a.Logger)
	handler.Register(r)

	return r
}
