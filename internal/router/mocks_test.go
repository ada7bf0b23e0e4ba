package router

import (
	"errors"
	"sync"
	"testing"
	"time"

	"mqtt-trade-relay/config"
	"mqtt-trade-relay/internal/dedup"
	"mqtt-trade-relay/internal/event"
	"mqtt-trade-relay/internal/liveness"
	"mqtt-trade-relay/internal/logger"
	"mqtt-trade-relay/internal/sink"
	"mqtt-trade-relay/internal/snapshot"
	"mqtt-trade-relay/internal/stats"
)

// recordingNotifier captures published notifications for assertions.
type recordingNotifier struct {
	mu            sync.Mutex
	failNext      bool
	notifications []sink.Notification
}

func (r *recordingNotifier) Publish(n sink.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext {
		r.failNext = false
		return errors.New("sink unavailable")
	}
	r.notifications = append(r.notifications, n)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notifications)
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

type routerFixture struct {
	router   *Router
	notifier *recordingNotifier
	tracker  *liveness.Tracker
	store    *snapshot.Store
	stats    *stats.Collector
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	log, err := logger.NewLogger(&config.LogConfig{
		Level:      "debug",
		OutputPath: "stdout",
		Encoding:   "console",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	notifier := &recordingNotifier{}
	tracker := liveness.NewTracker(90*time.Second, 30*time.Second, notifier, log, nil)
	store := snapshot.NewStore()
	st := stats.NewCollector()

	r := NewRouter(
		Config{StaleWindow: 5 * time.Minute},
		event.NewCodec("polyspike/"),
		dedup.NewLedger(time.Hour, 1000),
		tracker,
		store,
		notifier,
		log,
		nil,
		st,
	)

	// Pin the stale-filter reference so tests can use fixed timestamps.
	r.startupTime = time.Unix(1700000000, 0)

	return &routerFixture{
		router:   r,
		notifier: notifier,
		tracker:  tracker,
		store:    store,
		stats:    st,
	}
}
