// Package event defines the trading-bot event model and the payload codec
// that turns raw broker messages into typed events.
package event

import (
	"time"
)

// Kind identifies the class of an inbound trading-bot event.
type Kind string

const (
	KindStarted        Kind = "started"
	KindStopped        Kind = "stopped"
	KindError          Kind = "error"
	KindHeartbeat      Kind = "heartbeat"
	KindPositionOpened Kind = "position_opened"
	KindTradeCompleted Kind = "trade_completed"
	KindBalanceUpdate  Kind = "balance_update"
	KindSessionStats   Kind = "session_stats"
)

// Topic suffixes relative to the configured prefix.
const (
	TopicStarted        = "status/bot/started"
	TopicStopped        = "status/bot/stopped"
	TopicError          = "status/bot/error"
	TopicHeartbeat      = "status/bot/heartbeat"
	TopicPositionOpened = "trading/position/opened"
	TopicTradeCompleted = "trading/trade/completed"
	TopicBalanceUpdate  = "balance/update"
	TopicSessionStats   = "stats/session"
)

// Suffixes lists every topic suffix the relay subscribes to.
func Suffixes() []string {
	return []string{
		TopicStarted,
		TopicStopped,
		TopicError,
		TopicHeartbeat,
		TopicPositionOpened,
		TopicTradeCompleted,
		TopicBalanceUpdate,
		TopicSessionStats,
	}
}

// Category returns the notification category path for the kind, matching
// the topic suffix the event arrived on.
func (k Kind) Category() string {
	switch k {
	case KindStarted:
		return TopicStarted
	case KindStopped:
		return TopicStopped
	case KindError:
		return TopicError
	case KindHeartbeat:
		return TopicHeartbeat
	case KindPositionOpened:
		return TopicPositionOpened
	case KindTradeCompleted:
		return TopicTradeCompleted
	case KindBalanceUpdate:
		return TopicBalanceUpdate
	case KindSessionStats:
		return TopicSessionStats
	}
	return string(k)
}

// Event is a decoded broker message. Immutable once constructed: the codec
// builds it and the router consumes it exactly once.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	// Key is the idempotency key; set only for trade-completed events that
	// carry a trade_id.
	Key    string
	Fields map[string]interface{}
}
