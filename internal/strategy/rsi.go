package strategy

import (
	"fmt"

	"futures-bot/internal/model"
)

// RSI entry thresholds. The venue-facing parameter set only carries the
// lookback periods, so the bands stay at the conventional 30/70.
const (
	rsiOversold   = 30.0
	rsiOverbought = 70.0
)

// RSIStrategy buys oversold and sells overbought, with a slow-MA trend
// filter shading confidence: entries aligned with the prevailing trend
// score higher than counter-trend ones. FastPeriod is the RSI lookback,
// SlowPeriod the trend MA.
type RSIStrategy struct {
	gate
	period      int
	trendPeriod int
}

func NewRSIStrategy(cfg model.StrategyConfig) *RSIStrategy {
	return &RSIStrategy{
		gate:        gate{cfg: cfg},
		period:      cfg.FastPeriod,
		trendPeriod: cfg.SlowPeriod,
	}
}

func (s *RSIStrategy) Name() string {
	return fmt.Sprintf("RSI_%d", s.period)
}

func (s *RSIStrategy) lookback() int {
	if s.trendPeriod > s.period+1 {
		return s.trendPeriod
	}
	return s.period + 1
}

func (s *RSIStrategy) Evaluate(candles []model.Candle, pos *model.Position) model.Signal {
	if len(candles) < s.lookback() {
		return model.Hold("insufficient history")
	}

	value := rsi(candles, s.period)

	if pos != nil {
		if sig, ok := s.riskExit(candles, pos); ok {
			return sig
		}
		// Exit when momentum reaches the opposite band.
		if pos.Side == model.SideLong && value >= rsiOverbought {
			return s.close(pos, fmt.Sprintf("RSI overbought: %.2f", value))
		}
		if pos.Side == model.SideShort && value <= rsiOversold {
			return s.close(pos, fmt.Sprintf("RSI oversold: %.2f", value))
		}
		return model.Hold("position open")
	}

	last := candles[len(candles)-1].Close
	trendMA := sma(candles, s.trendPeriod, 0)
	uptrend := last.GreaterThanOrEqual(trendMA)

	switch {
	case value < rsiOversold:
		confidence := clamp01(0.5 + (rsiOversold-value)/rsiOversold)
		if !uptrend {
			confidence = clamp01(confidence - 0.1)
		}
		return s.entry(model.ActionBuy, confidence, fmt.Sprintf("RSI oversold: %.2f < %.2f", value, rsiOversold))
	case value > rsiOverbought:
		confidence := clamp01(0.5 + (value-rsiOverbought)/(100-rsiOverbought))
		if uptrend {
			confidence = clamp01(confidence - 0.1)
		}
		return s.entry(model.ActionSell, confidence, fmt.Sprintf("RSI overbought: %.2f > %.2f", value, rsiOverbought))
	default:
		return s.entry(model.ActionHold, 0, fmt.Sprintf("RSI neutral: %.2f", value))
	}
}
