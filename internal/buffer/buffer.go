package buffer

import (
	"futures-bot/internal/model"
)

// CandleBuffer is a bounded rolling window of candles for one
// (user, symbol, timeframe). It is exclusively owned by a single bot run
// or backtest and is not safe for concurrent use.
type CandleBuffer struct {
	candles  []model.Candle
	capacity int
	head     int
	size     int
}

// New creates a buffer with the given fixed capacity.
func New(capacity int) *CandleBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &CandleBuffer{
		candles:  make([]model.Candle, capacity),
		capacity: capacity,
	}
}

// Seed pre-loads historical candles, keeping the newest `capacity` entries.
// The input must be ordered oldest to newest.
func (b *CandleBuffer) Seed(candles []model.Candle) {
	for _, c := range candles {
		b.Push(c)
	}
}

// Push appends a candle, evicting the oldest when at capacity. O(1).
// A candle with the same timestamp as the newest entry replaces it
// (exchanges re-send the forming candle until it closes).
func (b *CandleBuffer) Push(c model.Candle) {
	if b.size > 0 {
		last := (b.head + b.size - 1) % b.capacity
		if b.candles[last].Timestamp.Equal(c.Timestamp) {
			b.candles[last] = c
			return
		}
	}
	if b.size < b.capacity {
		b.candles[(b.head+b.size)%b.capacity] = c
		b.size++
		return
	}
	b.candles[b.head] = c
	b.head = (b.head + 1) % b.capacity
}

// Snapshot returns a copy of the window ordered oldest to newest.
// Callers may not mutate buffer state through the returned slice.
func (b *CandleBuffer) Snapshot() []model.Candle {
	out := make([]model.Candle, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.candles[(b.head+i)%b.capacity]
	}
	return out
}

// Len returns the number of candles currently held.
func (b *CandleBuffer) Len() int {
	return b.size
}

// Capacity returns the fixed window size.
func (b *CandleBuffer) Capacity() int {
	return b.capacity
}
