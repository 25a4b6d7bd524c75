package strategy

import (
	"fmt"

	"futures-bot/internal/model"
)

// gate carries the entry/exit rules every variant shares: percentage
// stop-loss/take-profit against the open position's entry price, a
// cooldown after exits, and minimum-confidence suppression.
type gate struct {
	cfg          model.StrategyConfig
	cooldownLeft int
}

// riskExit checks the open position against the configured stop-loss and
// take-profit percentages at the latest close. Returns a close signal and
// true when a threshold is breached.
func (g *gate) riskExit(candles []model.Candle, pos *model.Position) (model.Signal, bool) {
	if pos == nil || len(candles) == 0 {
		return model.Signal{}, false
	}
	last := candles[len(candles)-1].Close
	pnlPct, _ := last.Sub(pos.EntryPrice).Div(pos.EntryPrice).Float64()
	if pos.Side == model.SideShort {
		pnlPct = -pnlPct
	}
	pnlPct *= 100

	if g.cfg.StopLossPct > 0 && pnlPct <= -g.cfg.StopLossPct {
		return g.close(pos, fmt.Sprintf("stop loss hit: %.2f%%", pnlPct)), true
	}
	if g.cfg.TakeProfitPct > 0 && pnlPct >= g.cfg.TakeProfitPct {
		return g.close(pos, fmt.Sprintf("take profit hit: %.2f%%", pnlPct)), true
	}
	return model.Signal{}, false
}

// close builds an exit signal and arms the cooldown window.
func (g *gate) close(pos *model.Position, reason string) model.Signal {
	g.cooldownLeft = g.cfg.CooldownCandles
	return model.Signal{
		Action:     model.ActionClose,
		Confidence: 1,
		Size:       pos.Size,
		Reason:     reason,
	}
}

// entry applies cooldown and minimum-confidence gating to a candidate
// entry signal. The cooldown counter burns one candle per flat evaluation.
func (g *gate) entry(action model.Action, confidence float64, reason string) model.Signal {
	if g.cooldownLeft > 0 {
		g.cooldownLeft--
		return model.Hold(fmt.Sprintf("cooldown: %d candles left", g.cooldownLeft))
	}
	if action == model.ActionHold {
		return model.Hold(reason)
	}
	if confidence < g.cfg.MinConfidence {
		return model.Hold(fmt.Sprintf("confidence %.2f below minimum %.2f", confidence, g.cfg.MinConfidence))
	}
	return model.Signal{
		Action:     action,
		Confidence: confidence,
		Size:       g.cfg.PositionSize,
		Reason:     reason,
	}
}
