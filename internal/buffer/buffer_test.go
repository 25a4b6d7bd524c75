package buffer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"futures-bot/internal/model"
)

func makeCandle(i int, base time.Time) model.Candle {
	return model.Candle{
		Symbol:    "BTCUSDT",
		Timeframe: "1m",
		Close:     decimal.NewFromInt(int64(50000 + i)),
		Timestamp: base.Add(time.Duration(i) * time.Minute),
	}
}

func TestCandleBuffer_EvictsOldest(t *testing.T) {
	base := time.Now().Truncate(time.Minute)
	b := New(100)

	for i := 0; i < 250; i++ {
		b.Push(makeCandle(i, base))
	}

	snap := b.Snapshot()
	assert.Equal(t, 100, b.Len())
	assert.Equal(t, 100, len(snap))

	// Snapshot must be exactly the last 100 pushed, in order.
	for i, c := range snap {
		want := makeCandle(150+i, base)
		assert.True(t, c.Close.Equal(want.Close), "index %d: got %s want %s", i, c.Close, want.Close)
		assert.True(t, c.Timestamp.Equal(want.Timestamp))
	}
}

func TestCandleBuffer_SameTimestampReplaces(t *testing.T) {
	base := time.Now().Truncate(time.Minute)
	b := New(10)

	c := makeCandle(0, base)
	b.Push(c)

	// Forming candle updates in place.
	c.Close = decimal.NewFromInt(51000)
	b.Push(c)

	assert.Equal(t, 1, b.Len())
	assert.True(t, b.Snapshot()[0].Close.Equal(decimal.NewFromInt(51000)))
}

func TestCandleBuffer_SeedKeepsNewest(t *testing.T) {
	base := time.Now().Truncate(time.Minute)
	b := New(5)

	candles := make([]model.Candle, 8)
	for i := range candles {
		candles[i] = makeCandle(i, base)
	}
	b.Seed(candles)

	snap := b.Snapshot()
	assert.Equal(t, 5, len(snap))
	assert.True(t, snap[0].Close.Equal(decimal.NewFromInt(50003)))
	assert.True(t, snap[4].Close.Equal(decimal.NewFromInt(50007)))
}

func TestCandleBuffer_SnapshotIsCopy(t *testing.T) {
	base := time.Now().Truncate(time.Minute)
	b := New(5)
	b.Push(makeCandle(0, base))

	snap := b.Snapshot()
	snap[0].Close = decimal.NewFromInt(1)

	assert.True(t, b.Snapshot()[0].Close.Equal(decimal.NewFromInt(50000)))
}
