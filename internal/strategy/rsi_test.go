package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futures-bot/internal/model"
)

func rsiConfig() model.StrategyConfig {
	return model.StrategyConfig{
		ID:           2,
		UserID:       7,
		Variant:      "rsi",
		Symbol:       "BTCUSDT",
		Timeframe:    "1m",
		FastPeriod:   14, // RSI lookback
		SlowPeriod:   20, // trend MA
		PositionSize: decimal.NewFromFloat(0.01),
	}
}

// rsiDrivePrices alternates small moves to keep RSI near the middle, then
// sells off hard enough to push it under the oversold band.
func rsiDrivePrices() []float64 {
	prices := []float64{100}
	for i := 0; i < 30; i++ {
		last := prices[len(prices)-1]
		if i%2 == 0 {
			prices = append(prices, last-0.6)
		} else {
			prices = append(prices, last+0.5)
		}
	}
	for i := 0; i < 15; i++ {
		prices = append(prices, prices[len(prices)-1]-1.5)
	}
	return prices
}

func TestRSI_BuyAtFirstOversoldCandle(t *testing.T) {
	candles := candlesFromPrices(rsiDrivePrices())
	s := NewRSIStrategy(rsiConfig())

	buyAt := -1
	for i := s.lookback(); i <= len(candles); i++ {
		value := rsi(candles[:i], 14)
		sig := s.Evaluate(candles[:i], nil)

		if buyAt == -1 {
			if value < rsiOversold {
				require.Equal(t, model.ActionBuy, sig.Action,
					"first candle with RSI %.2f < 30 must produce a buy", value)
				buyAt = i - 1
			} else {
				require.Equal(t, model.ActionHold, sig.Action,
					"RSI %.2f >= 30 must hold at candle %d", value, i-1)
			}
		}
	}

	assert.NotEqual(t, -1, buyAt, "sequence must drive RSI below 30")
}

func TestRSI_InsufficientHistoryHolds(t *testing.T) {
	s := NewRSIStrategy(rsiConfig())
	sig := s.Evaluate(candlesFromPrices([]float64{100, 99, 98}), nil)
	assert.Equal(t, model.ActionHold, sig.Action)
}

func TestRSI_LongClosedWhenOverbought(t *testing.T) {
	// Strong rally: RSI pins near 100.
	prices := make([]float64, 0, 40)
	for i := 0; i < 40; i++ {
		prices = append(prices, 100+2*float64(i))
	}
	candles := candlesFromPrices(prices)

	pos := &model.Position{
		Symbol:     "BTCUSDT",
		Side:       model.SideLong,
		Size:       decimal.NewFromFloat(0.01),
		EntryPrice: decimal.NewFromInt(100),
	}

	s := NewRSIStrategy(rsiConfig())
	sig := s.Evaluate(candles, pos)

	assert.Equal(t, model.ActionClose, sig.Action)
	assert.True(t, sig.Size.Equal(pos.Size))
}

func TestRSI_NoEntryWhilePositionOpen(t *testing.T) {
	candles := candlesFromPrices(rsiDrivePrices())
	pos := &model.Position{
		Symbol:     "BTCUSDT",
		Side:       model.SideShort,
		Size:       decimal.NewFromFloat(0.01),
		EntryPrice: decimal.NewFromInt(100),
	}

	s := NewRSIStrategy(rsiConfig())
	sig := s.Evaluate(candles, pos)

	// Deep oversold while short: exit, never a fresh entry.
	assert.NotEqual(t, model.ActionBuy, sig.Action)
	assert.NotEqual(t, model.ActionSell, sig.Action)
}
