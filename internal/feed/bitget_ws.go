package feed

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futures-bot/internal/infrastructure"
	"futures-bot/internal/model"
)

// Sub names one candle stream to ingest.
type Sub struct {
	Symbol    string
	Timeframe string
}

// BitgetConnector maintains a websocket connection to the Bitget public feed
// and republishes every candle onto JetStream, one subject per symbol and
// timeframe. Candle storage and strategy evaluation both read from JetStream,
// never from the socket directly.
type BitgetConnector struct {
	url    string
	subs   []Sub
	js     nats.JetStreamContext
	store  CandleSink
	logger *zap.Logger
}

// CandleSink persists closed candles for backtests. Nil disables persistence.
type CandleSink interface {
	SaveCandle(ctx context.Context, c model.Candle) error
}

func NewBitgetConnector(url string, subs []Sub, js nats.JetStreamContext, store CandleSink, logger *zap.Logger) *BitgetConnector {
	return &BitgetConnector{url: url, subs: subs, js: js, store: store, logger: logger}
}

type wsSubscribeArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstID   string `json:"instId"`
}

type wsSubscribeMsg struct {
	Op   string           `json:"op"`
	Args []wsSubscribeArg `json:"args"`
}

type wsCandleEvent struct {
	Action string         `json:"action"`
	Arg    wsSubscribeArg `json:"arg"`
	Data   [][]string     `json:"data"`
}

func (b *BitgetConnector) Run(ctx context.Context) {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b.logger.Info("connecting to bitget websocket", zap.String("url", b.url))
		dialer := websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		}
		conn, _, err := dialer.Dial(b.url, nil)
		if err != nil {
			b.logger.Error("failed to connect to bitget", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = b.increaseBackoff(backoff)
			continue
		}

		backoff = time.Second // Reset backoff on successful connection
		b.logger.Info("connected to bitget websocket")
		infrastructure.WSConnections.Inc()

		if err := b.handleConnection(ctx, conn); err != nil {
			b.logger.Error("connection closed with error", zap.Error(err))
		}
		infrastructure.WSConnections.Dec()
		conn.Close()
	}
}

func (b *BitgetConnector) handleConnection(ctx context.Context, conn *websocket.Conn) error {
	if err := b.subscribe(conn); err != nil {
		return err
	}

	// Bitget expects an application-level "ping" string and answers "pong";
	// the read deadline detects a dead peer between candles.
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	stopPing := b.startPing(ctx, conn)
	defer stopPing()

	// ReadMessage only returns on data, deadline or a closed connection.
	// Close on cancellation so shutdown does not wait out the deadline.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			_, message, err := conn.ReadMessage()
			if err != nil {
				return err
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if string(message) == "pong" {
				continue
			}

			var event wsCandleEvent
			if err := json.Unmarshal(message, &event); err != nil {
				b.logger.Error("failed to unmarshal candle event", zap.Error(err))
				continue
			}
			if len(event.Data) == 0 || event.Arg.Channel == "" {
				continue
			}
			b.publish(ctx, event)
		}
	}
}

func (b *BitgetConnector) subscribe(conn *websocket.Conn) error {
	msg := wsSubscribeMsg{Op: "subscribe"}
	for _, s := range b.subs {
		msg.Args = append(msg.Args, wsSubscribeArg{
			InstType: "USDT-FUTURES",
			Channel:  candleChannel(s.Timeframe),
			InstID:   NormalizeSymbol(s.Symbol),
		})
	}
	return conn.WriteJSON(msg)
}

func (b *BitgetConnector) startPing(ctx context.Context, conn *websocket.Conn) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(25 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
					return
				}
			}
		}
	}()
	var once bool
	return func() {
		if !once {
			once = true
			close(done)
		}
	}
}

func (b *BitgetConnector) publish(ctx context.Context, event wsCandleEvent) {
	timeframe := b.timeframeFor(event.Arg)
	for _, row := range event.Data {
		candle, ok := parseCandleRow(event.Arg.InstID, timeframe, row)
		if !ok {
			b.logger.Warn("skipping malformed candle row", zap.Strings("row", row))
			continue
		}

		data, err := json.Marshal(candle)
		if err != nil {
			b.logger.Error("failed to marshal candle", zap.Error(err))
			continue
		}
		if _, err := b.js.Publish(CandleSubject(candle.Symbol, candle.Timeframe), data); err != nil {
			b.logger.Error("failed to publish candle", zap.Error(err))
			continue
		}

		if b.store != nil {
			if err := b.store.SaveCandle(ctx, candle); err != nil {
				b.logger.Warn("failed to persist candle", zap.Error(err))
			}
		}
	}
}

// timeframeFor recovers the configured timeframe from the channel the event
// arrived on, so publishes reuse the exact string bots subscribe with.
func (b *BitgetConnector) timeframeFor(arg wsSubscribeArg) string {
	for _, s := range b.subs {
		if candleChannel(s.Timeframe) == arg.Channel && NormalizeSymbol(s.Symbol) == arg.InstID {
			return s.Timeframe
		}
	}
	return strings.TrimPrefix(arg.Channel, "candle")
}

// parseCandleRow decodes one Bitget candle row: [ts, open, high, low, close, baseVol, quoteVol].
func parseCandleRow(symbol, timeframe string, row []string) (model.Candle, bool) {
	if len(row) < 6 {
		return model.Candle{}, false
	}
	ts, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return model.Candle{}, false
	}
	vals := make([]decimal.Decimal, 5)
	for i := 0; i < 5; i++ {
		v, err := decimal.NewFromString(row[i+1])
		if err != nil {
			return model.Candle{}, false
		}
		vals[i] = v
	}
	return model.Candle{
		Symbol:    symbol,
		Timeframe: timeframe,
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
		Timestamp: time.Unix(0, ts*int64(time.Millisecond)).UTC(),
	}, true
}

func (b *BitgetConnector) increaseBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > time.Minute {
		return time.Minute
	}
	return next
}
