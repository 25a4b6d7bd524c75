package strategy

import (
	"fmt"

	"futures-bot/internal/model"
)

// MACrossStrategy 双均线策略.
// Golden cross (fast MA crossing above slow MA) opens a long, dead cross
// opens a short. An open position exits on the opposite cross or on the
// shared stop-loss/take-profit thresholds.
type MACrossStrategy struct {
	gate
	fastPeriod int
	slowPeriod int
}

func NewMACrossStrategy(cfg model.StrategyConfig) *MACrossStrategy {
	return &MACrossStrategy{
		gate:       gate{cfg: cfg},
		fastPeriod: cfg.FastPeriod,
		slowPeriod: cfg.SlowPeriod,
	}
}

func (s *MACrossStrategy) Name() string {
	return fmt.Sprintf("MA_Cross_%d_%d", s.fastPeriod, s.slowPeriod)
}

func (s *MACrossStrategy) Evaluate(candles []model.Candle, pos *model.Position) model.Signal {
	// Need one extra candle to compare against the previous MA pair.
	if len(candles) < s.slowPeriod+1 {
		return model.Hold("insufficient history")
	}

	fastMA := sma(candles, s.fastPeriod, 0)
	slowMA := sma(candles, s.slowPeriod, 0)
	prevFast := sma(candles, s.fastPeriod, 1)
	prevSlow := sma(candles, s.slowPeriod, 1)

	golden := prevFast.LessThanOrEqual(prevSlow) && fastMA.GreaterThan(slowMA)
	dead := prevFast.GreaterThanOrEqual(prevSlow) && fastMA.LessThan(slowMA)

	if pos != nil {
		if sig, ok := s.riskExit(candles, pos); ok {
			return sig
		}
		// Exit on the opposite cross.
		if (pos.Side == model.SideLong && dead) || (pos.Side == model.SideShort && golden) {
			return s.close(pos, fmt.Sprintf("opposite cross: MA%d %s / MA%d %s",
				s.fastPeriod, fastMA, s.slowPeriod, slowMA))
		}
		return model.Hold("position open")
	}

	sep, _ := fastMA.Sub(slowMA).Abs().Div(slowMA).Float64()
	confidence := clamp01(0.5 + sep*50)

	switch {
	case golden:
		return s.entry(model.ActionBuy, confidence,
			fmt.Sprintf("golden cross: MA%d(%s) > MA%d(%s)", s.fastPeriod, fastMA, s.slowPeriod, slowMA))
	case dead:
		return s.entry(model.ActionSell, confidence,
			fmt.Sprintf("dead cross: MA%d(%s) < MA%d(%s)", s.fastPeriod, fastMA, s.slowPeriod, slowMA))
	default:
		return s.entry(model.ActionHold, 0, "no cross")
	}
}
