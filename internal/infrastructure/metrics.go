package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveBots = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bot_active_total",
		Help: "Number of currently running bot execution units",
	})

	CandlesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bot_candles_processed_total",
		Help: "Total number of candles evaluated by bot execution units",
	}, []string{"symbol", "timeframe"})

	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of orders sent to the exchange",
	}, []string{"symbol", "action"})

	OrderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_errors_total",
		Help: "Total number of exchange order failures by error kind",
	}, []string{"kind"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	StaleFeeds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_stale_warnings_total",
		Help: "Total number of data-staleness warnings per symbol",
	}, []string{"symbol"})

	BacktestsRun = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backtests_run_total",
		Help: "Total number of backtests by terminal status",
	}, []string{"status"})
)
