package feed

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"futures-bot/internal/model"
)

// Subscriber hands out candle channels backed by JetStream. Every call to
// Subscribe creates its own ephemeral consumer starting from new messages,
// so each bot receives the full candle stream independently and a stalled
// bot cannot starve the others.
type Subscriber struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

func NewSubscriber(js nats.JetStreamContext, logger *zap.Logger) *Subscriber {
	return &Subscriber{js: js, logger: logger}
}

func (s *Subscriber) Subscribe(symbol, timeframe string) (<-chan model.Candle, func(), error) {
	subject := CandleSubject(symbol, timeframe)
	out := make(chan model.Candle, 64)

	sub, err := s.js.Subscribe(subject, func(msg *nats.Msg) {
		var candle model.Candle
		if err := json.Unmarshal(msg.Data, &candle); err != nil {
			s.logger.Error("failed to unmarshal candle message", zap.String("subject", subject), zap.Error(err))
			return
		}
		select {
		case out <- candle:
		default:
			s.logger.Warn("candle channel full, dropping candle",
				zap.String("subject", subject),
				zap.Time("candle_time", candle.Timestamp))
		}
		msg.Ack()
	}, nats.DeliverNew(), nats.AckExplicit())
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}

	// The channel is left open after unsubscribe: the delivery callback may
	// still be in flight, and a send on a closed channel panics.
	cancel := func() {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("failed to unsubscribe", zap.String("subject", subject), zap.Error(err))
		}
	}
	return out, cancel, nil
}
