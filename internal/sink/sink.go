// Package sink delivers tagged notifications to the downstream renderer.
// Rendering itself (chat embeds, formatting) lives outside this process;
// the sink only guarantees each notification carries enough to render.
package sink

import (
	"time"

	"github.com/google/uuid"
)

// Notification categories beyond plain relayed events.
const (
	CategoryHeartbeatTimeout   = "alert/heartbeat_timeout"
	CategoryHeartbeatRecovered = "alert/heartbeat_recovered"
	CategoryBrokerUnreachable  = "alert/broker_unreachable"
)

// Notification is the tagged payload handed to the downstream renderer.
type Notification struct {
	ID        string                 `json:"id"`
	Category  string                 `json:"category"`
	Timestamp time.Time              `json:"timestamp"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// NewNotification builds a notification with a fresh ID and the current time.
func NewNotification(category string, fields map[string]interface{}) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Category:  category,
		Timestamp: time.Now(),
		Fields:    fields,
	}
}

// Notifier publishes user-facing notifications. Implementations must be safe
// for concurrent use; delivery failures are reported, never panicked.
type Notifier interface {
	Publish(n Notification) error
}

// Discard is a Notifier that drops everything. Used when the sink is
// disabled in configuration.
type Discard struct{}

func (Discard) Publish(Notification) error { return nil }
