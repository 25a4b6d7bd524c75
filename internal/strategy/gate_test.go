package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"futures-bot/internal/model"
)

func TestGate_CooldownSuppressesEntries(t *testing.T) {
	g := gate{cfg: model.StrategyConfig{
		CooldownCandles: 3,
		PositionSize:    decimal.NewFromFloat(0.01),
	}}

	pos := &model.Position{
		Symbol:     "BTCUSDT",
		Side:       model.SideLong,
		Size:       decimal.NewFromFloat(0.01),
		EntryPrice: decimal.NewFromInt(100),
	}

	sig := g.close(pos, "exit")
	assert.Equal(t, model.ActionClose, sig.Action)

	// The next three flat candles must not open anything.
	for i := 0; i < 3; i++ {
		sig = g.entry(model.ActionBuy, 1, "cross")
		assert.Equal(t, model.ActionHold, sig.Action, "candle %d inside cooldown", i)
	}

	sig = g.entry(model.ActionBuy, 1, "cross")
	assert.Equal(t, model.ActionBuy, sig.Action)
	assert.True(t, sig.Size.Equal(decimal.NewFromFloat(0.01)))
}

func TestGate_CooldownBurnsOnHoldCandles(t *testing.T) {
	g := gate{cfg: model.StrategyConfig{CooldownCandles: 2, PositionSize: decimal.NewFromFloat(1)}}
	g.close(&model.Position{Size: decimal.NewFromFloat(1), EntryPrice: decimal.NewFromInt(100)}, "exit")

	// Quiet candles count against the window too.
	g.entry(model.ActionHold, 0, "no setup")
	g.entry(model.ActionHold, 0, "no setup")

	sig := g.entry(model.ActionSell, 1, "cross")
	assert.Equal(t, model.ActionSell, sig.Action)
}

func TestGate_RiskExits(t *testing.T) {
	g := gate{cfg: model.StrategyConfig{StopLossPct: 5, TakeProfitPct: 10}}

	long := &model.Position{
		Side:       model.SideLong,
		Size:       decimal.NewFromFloat(0.5),
		EntryPrice: decimal.NewFromInt(100),
	}

	tests := []struct {
		name  string
		pos   *model.Position
		price float64
		exit  bool
	}{
		{"long stop loss", long, 94, true},
		{"long take profit", long, 111, true},
		{"long within bands", long, 102, false},
		{"short stop loss", &model.Position{Side: model.SideShort, Size: decimal.NewFromFloat(1), EntryPrice: decimal.NewFromInt(100)}, 106, true},
		{"short take profit", &model.Position{Side: model.SideShort, Size: decimal.NewFromFloat(1), EntryPrice: decimal.NewFromInt(100)}, 89, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candles := candlesFromPrices([]float64{tt.price})
			sig, ok := g.riskExit(candles, tt.pos)
			assert.Equal(t, tt.exit, ok)
			if ok {
				assert.Equal(t, model.ActionClose, sig.Action)
				assert.True(t, sig.Size.Equal(tt.pos.Size))
			}
		})
	}
}

func TestFactory_UnknownVariantFails(t *testing.T) {
	cfg := model.StrategyConfig{
		Variant:      "martingale",
		FastPeriod:   5,
		SlowPeriod:   20,
		PositionSize: decimal.NewFromFloat(0.01),
	}
	_, err := New(cfg)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy variant")
}

func TestFactory_BuildsConfiguredVariants(t *testing.T) {
	cfg := maConfig()
	s, err := New(cfg)
	assert.NoError(t, err)
	assert.Equal(t, "MA_Cross_10_30", s.Name())

	s, err = New(rsiConfig())
	assert.NoError(t, err)
	assert.Equal(t, "RSI_14", s.Name())

	cfg.FastPeriod = 50
	_, err = New(cfg)
	assert.Error(t, err)
}
