package feed

import (
	"fmt"
	"strings"
)

// NormalizeSymbol unifies different exchange symbol formats into a standard one (e.g. BTCUSDT)
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}

// candleChannel maps a timeframe to the Bitget candle channel name.
func candleChannel(timeframe string) string {
	switch timeframe {
	case "1m", "5m", "15m", "30m":
		return "candle" + timeframe
	case "1h":
		return "candle1H"
	case "4h":
		return "candle4H"
	case "1d":
		return "candle1D"
	default:
		return "candle" + timeframe
	}
}

// CandleSubject is the JetStream subject a candle is published on.
func CandleSubject(symbol, timeframe string) string {
	return fmt.Sprintf("market.candle.%s.%s", NormalizeSymbol(symbol), timeframe)
}
