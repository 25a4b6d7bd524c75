package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"futures-bot/internal/backtest"
	"futures-bot/internal/bot"
	"futures-bot/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Handler struct {
	supervisor *bot.Supervisor
	backtests  *backtest.Runner
	store      *store.Store
	logger     *zap.Logger
}

func NewHandler(supervisor *bot.Supervisor, backtests *backtest.Runner, st *store.Store, logger *zap.Logger) *Handler {
	return &Handler{
		supervisor: supervisor,
		backtests:  backtests,
		store:      st,
		logger:     logger,
	}
}

func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/bots/start", h.StartBot)
		v1.POST("/bots/stop", h.StopBot)
		v1.GET("/bots/status", h.BotStatus)
		v1.POST("/backtests", h.RunBacktest)
		v1.GET("/backtests/:id", h.GetBacktest)
		v1.GET("/trades", h.GetTrades)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Bot Handlers

func (h *Handler) StartBot(c *gin.Context) {
	var req struct {
		UserID     int64 `json:"user_id" binding:"required"`
		StrategyID int64 `json:"strategy_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := h.supervisor.Start(c.Request.Context(), req.UserID, req.StrategyID)
	if err != nil {
		if errors.Is(err, bot.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": "bot already running"})
			return
		}
		h.logger.Warn("failed to start bot",
			zap.Int64("user_id", req.UserID),
			zap.Int64("strategy_id", req.StrategyID),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, state)
}

func (h *Handler) StopBot(c *gin.Context) {
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.supervisor.Stop(c.Request.Context(), req.UserID)
	if err != nil {
		h.logger.Error("failed to stop bot", zap.Int64("user_id", req.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, res)
}

func (h *Handler) BotStatus(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	state, err := h.supervisor.Status(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to read bot status", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, state)
}

// Backtest Handlers

func (h *Handler) RunBacktest(c *gin.Context) {
	var req struct {
		UserID         int64           `json:"user_id" binding:"required"`
		StrategyID     int64           `json:"strategy_id" binding:"required"`
		InitialBalance decimal.Decimal `json:"initial_balance"`
		StartTime      time.Time       `json:"start_time" binding:"required"`
		EndTime        time.Time       `json:"end_time" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.backtests.Enqueue(c.Request.Context(), backtest.Request{
		UserID:         req.UserID,
		StrategyID:     req.StrategyID,
		Start:          req.StartTime,
		End:            req.EndTime,
		InitialBalance: req.InitialBalance,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "queued"})
}

func (h *Handler) GetBacktest(c *gin.Context) {
	res, err := h.backtests.Result(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "backtest not found"})
			return
		}
		h.logger.Error("failed to read backtest", zap.String("id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, res)
}

// Trade Handlers

func (h *Handler) GetTrades(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}

	trades, err := h.store.TradeRecords(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.Error("failed to query trades", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, trades)
}
