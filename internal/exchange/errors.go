package exchange

import (
	"errors"
	"fmt"
)

// ErrorKind classifies exchange failures so callers can pick a policy
// without parsing message text.
type ErrorKind int

const (
	// KindExchange is any venue rejection not covered below.
	KindExchange ErrorKind = iota
	// KindNetwork covers transport failures and timeouts. Retryable.
	KindNetwork
	// KindRateLimit means the venue throttled us. Retryable.
	KindRateLimit
	// KindAuth means invalid or expired credentials. Fatal for the bot.
	KindAuth
	// KindInsufficientBalance is a configuration problem, not transient.
	KindInsufficientBalance
	// KindMinOrderSize means the order is below the venue minimum.
	KindMinOrderSize
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindRateLimit:
		return "rate_limit"
	case KindAuth:
		return "auth"
	case KindInsufficientBalance:
		return "insufficient_balance"
	case KindMinOrderSize:
		return "min_order_size"
	default:
		return "exchange"
	}
}

// APIError is the normalized error surfaced by exchange clients.
type APIError struct {
	Kind ErrorKind
	Code string
	Msg  string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("exchange %s error (code %s): %s", e.Kind, e.Code, e.Msg)
	}
	return fmt.Sprintf("exchange %s error: %s", e.Kind, e.Msg)
}

// Retryable reports whether the failure is transient.
func (e *APIError) Retryable() bool {
	return e.Kind == KindNetwork || e.Kind == KindRateLimit
}

// Fatal reports whether the owning bot must stop.
func (e *APIError) Fatal() bool {
	return e.Kind == KindAuth
}

// KindOf extracts the kind from an error chain. Unclassified errors are
// treated as network failures: the safe default is retry-then-skip.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindNetwork
}

// Retryable reports whether the error chain holds a transient failure.
func Retryable(err error) bool {
	k := KindOf(err)
	return k == KindNetwork || k == KindRateLimit
}

// netError wraps a transport failure.
func netError(err error) *APIError {
	return &APIError{Kind: KindNetwork, Msg: err.Error()}
}

// classifyCode maps venue response codes to error kinds. The code set
// follows the Bitget mix API; anything unrecognized stays KindExchange.
func classifyCode(code, msg string) *APIError {
	kind := KindExchange
	switch code {
	case "40001", "40002", "40006", "40012", "40037":
		// Bad signature, expired key, apikey does not exist.
		kind = KindAuth
	case "43012", "40754":
		kind = KindInsufficientBalance
	case "45110", "45111":
		kind = KindMinOrderSize
	case "429", "30007", "40018":
		kind = KindRateLimit
	}
	return &APIError{Kind: kind, Code: code, Msg: msg}
}
