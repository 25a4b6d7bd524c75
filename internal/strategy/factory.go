package strategy

import (
	"fmt"

	"futures-bot/internal/model"
)

// New builds the strategy for the config's variant tag. An unrecognized
// tag is a configuration error and fails the start request; there is no
// fallback variant.
func New(cfg model.StrategyConfig) (Strategy, error) {
	if cfg.FastPeriod <= 0 || cfg.SlowPeriod <= 0 {
		return nil, fmt.Errorf("strategy %d: periods must be positive (fast=%d, slow=%d)",
			cfg.ID, cfg.FastPeriod, cfg.SlowPeriod)
	}
	if cfg.PositionSize.Sign() <= 0 {
		return nil, fmt.Errorf("strategy %d: position_size must be positive", cfg.ID)
	}

	switch cfg.Variant {
	case "ma_cross":
		if cfg.FastPeriod >= cfg.SlowPeriod {
			return nil, fmt.Errorf("strategy %d: fast_period %d must be below slow_period %d",
				cfg.ID, cfg.FastPeriod, cfg.SlowPeriod)
		}
		return NewMACrossStrategy(cfg), nil
	case "rsi":
		return NewRSIStrategy(cfg), nil
	default:
		return nil, fmt.Errorf("unknown strategy variant: %q", cfg.Variant)
	}
}

// Lookback returns the number of candles the variant needs before it can
// produce a non-hold signal. Used to size historical seeds.
func Lookback(cfg model.StrategyConfig) int {
	if cfg.SlowPeriod > cfg.FastPeriod {
		return cfg.SlowPeriod + 1
	}
	return cfg.FastPeriod + 1
}
