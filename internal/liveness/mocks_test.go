package liveness

import (
	"sync"
	"testing"

	"mqtt-trade-relay/config"
	"mqtt-trade-relay/internal/logger"
	"mqtt-trade-relay/internal/sink"
)

// recordingNotifier captures published notifications for assertions.
type recordingNotifier struct {
	mu            sync.Mutex
	notifications []sink.Notification
}

func (r *recordingNotifier) Publish(n sink.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
	return nil
}

func (r *recordingNotifier) byCategory(category string) []sink.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sink.Notification
	for _, n := range r.notifications {
		if n.Category == category {
			out = append(out, n)
		}
	}
	return out
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(&config.LogConfig{
		Level:      "debug",
		OutputPath: "stdout",
		Encoding:   "console",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return log
}
