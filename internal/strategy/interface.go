package strategy

import (
	"futures-bot/internal/model"
)

// Strategy evaluates one candle snapshot into exactly one signal.
// Implementations never return an error: on insufficient history they
// return a hold signal. While a position is open only close/hold are
// valid outputs; new entries require a flat book.
type Strategy interface {
	Name() string
	Evaluate(candles []model.Candle, pos *model.Position) model.Signal
}
