package strategy

import (
	"github.com/shopspring/decimal"

	"futures-bot/internal/model"
)

// sma computes the simple moving average of closes over `period` candles,
// ending `offset` candles before the newest one.
func sma(candles []model.Candle, period, offset int) decimal.Decimal {
	end := len(candles) - offset
	start := end - period
	if period <= 0 || start < 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for i := start; i < end; i++ {
		sum = sum.Add(candles[i].Close)
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}

// rsi computes a Relative Strength Index over the last `period` close-to-close
// changes, smoothing disabled. Returns 100 when there are no losses.
func rsi(candles []model.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}
	gain := 0.0
	loss := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		change, _ := candles[i].Close.Sub(candles[i-1].Close).Float64()
		if change > 0 {
			gain += change
		} else {
			loss -= change
		}
	}
	if loss == 0 {
		return 100
	}
	rs := gain / loss
	return 100 - (100 / (1 + rs))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
