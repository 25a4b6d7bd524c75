package backtest

import (
	"math"

	"github.com/shopspring/decimal"

	"futures-bot/internal/model"
)

// annualization factor for daily-ish candle returns
const annualize = 252

func computeMetrics(initial, final decimal.Decimal, trades []model.TradeRecord, equity []decimal.Decimal) model.BacktestMetrics {
	m := model.BacktestMetrics{TotalTrades: len(trades)}

	if initial.Sign() > 0 {
		ret, _ := final.Sub(initial).Div(initial).Mul(decimal.NewFromInt(100)).Float64()
		m.TotalReturnPct = ret
	}

	var wins, losses int
	var grossWin, grossLoss float64
	for _, tr := range trades {
		pnl, _ := tr.PnL.Float64()
		if pnl > 0 {
			wins++
			grossWin += pnl
		} else if pnl < 0 {
			losses++
			grossLoss += -pnl
		}
	}
	if len(trades) > 0 {
		m.WinRatePct = float64(wins) / float64(len(trades)) * 100
	}
	if grossLoss > 0 {
		m.ProfitFactor = grossWin / grossLoss
	}
	if wins > 0 {
		m.AvgWin = grossWin / float64(wins)
	}
	if losses > 0 {
		m.AvgLoss = -grossLoss / float64(losses)
	}

	m.SharpeRatio = sharpe(equity)
	m.MaxDrawdownPct = maxDrawdown(equity)
	return m
}

// sharpe computes the annualized Sharpe ratio over per-candle equity returns.
// Fewer than two equity points, or a flat return series, yields 0.
func sharpe(equity []decimal.Decimal) float64 {
	if len(equity) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev, _ := equity[i-1].Float64()
		cur, _ := equity[i].Float64()
		if prev == 0 {
			continue
		}
		returns = append(returns, (cur-prev)/prev)
	}
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	stdev := math.Sqrt(variance / float64(len(returns)))
	if stdev == 0 {
		return 0
	}
	return mean / stdev * math.Sqrt(annualize)
}

// maxDrawdown returns the deepest peak-to-trough decline as a positive percent.
func maxDrawdown(equity []decimal.Decimal) float64 {
	var peak, maxDD float64
	for _, e := range equity {
		v, _ := e.Float64()
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (peak - v) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
