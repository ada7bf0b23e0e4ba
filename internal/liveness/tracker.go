// Package liveness tracks upstream bot health from heartbeat events and
// raises timeout/recovery alerts.
package liveness

import (
	"context"
	"sync"
	"time"

	"mqtt-trade-relay/internal/logger"
	"mqtt-trade-relay/internal/metrics"
	"mqtt-trade-relay/internal/sink"
)

// Status is the derived upstream liveness state.
type Status string

const (
	// StatusUnknown means no heartbeat has ever been observed. It never
	// transitions to offline on its own: there is nothing to time out from.
	StatusUnknown Status = "unknown"
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

// State is an atomic snapshot of tracker state for query callers.
type State struct {
	Status        Status
	LastHeartbeat time.Time // zero when Status is unknown
	// HeartbeatFields holds the latest heartbeat payload (uptime, balance,
	// open positions, total trades). Nil when Status is unknown.
	HeartbeatFields map[string]interface{}
}

// Tracker is the single writer of liveness state. Heartbeats arrive from the
// router goroutine, Evaluate runs on a timer, and Snapshot is read from
// query handlers; a mutex covers all three.
type Tracker struct {
	timeout  time.Duration
	interval time.Duration
	notifier sink.Notifier
	logger   *logger.Logger
	metrics  *metrics.Metrics

	mu            sync.Mutex
	status        Status
	lastHeartbeat time.Time
	fields        map[string]interface{}
	alertSent     bool

	now func() time.Time
}

func NewTracker(timeout, checkInterval time.Duration, notifier sink.Notifier, log *logger.Logger, m *metrics.Metrics) *Tracker {
	return &Tracker{
		timeout:  timeout,
		interval: checkInterval,
		notifier: notifier,
		logger:   log,
		metrics:  m,
		status:   StatusUnknown,
		now:      time.Now,
	}
}

// RecordHeartbeat updates the last-seen timestamp and payload. A heartbeat
// after an offline transition emits a single recovery notification.
func (t *Tracker) RecordHeartbeat(ts time.Time, fields map[string]interface{}) {
	t.mu.Lock()
	wasOffline := t.status == StatusOffline
	t.lastHeartbeat = ts
	t.fields = fields
	t.status = StatusOnline
	t.alertSent = false
	t.mu.Unlock()

	t.safeMetricsUpdate(func(m *metrics.Metrics) {
		m.SetUpstreamOnline(1)
		m.SetLastHeartbeat(float64(ts.Unix()))
	})

	if wasOffline {
		t.logger.Info("heartbeat received, upstream bot is back online")
		t.publish(sink.CategoryHeartbeatRecovered, map[string]interface{}{
			"last_heartbeat": ts.Unix(),
		})
		return
	}

	t.logger.Debug("heartbeat updated", "timestamp", ts.Unix())
}

// Evaluate transitions online to offline when the heartbeat gap exceeds the
// timeout, emitting the timeout alert exactly once per transition. Repeated
// calls while offline are no-ops.
func (t *Tracker) Evaluate(now time.Time) {
	t.mu.Lock()

	if t.status != StatusOnline || t.lastHeartbeat.IsZero() {
		t.mu.Unlock()
		return
	}

	gap := now.Sub(t.lastHeartbeat)
	if gap <= t.timeout {
		t.mu.Unlock()
		t.logger.Debug("heartbeat ok", "gap", gap.String())
		return
	}

	t.status = StatusOffline
	alreadyAlerted := t.alertSent
	t.alertSent = true
	last := t.lastHeartbeat
	t.mu.Unlock()

	t.safeMetricsUpdate(func(m *metrics.Metrics) { m.SetUpstreamOnline(0) })

	if alreadyAlerted {
		return
	}

	t.logger.Warn("heartbeat timeout",
		"lastHeartbeat", last.Unix(),
		"gap", gap.String(),
		"timeout", t.timeout.String())

	t.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncTimeoutAlerts() })
	t.publish(sink.CategoryHeartbeatTimeout, map[string]interface{}{
		"last_heartbeat":  last.Unix(),
		"missing_seconds": int64(gap.Seconds()),
	})
}

// Snapshot returns the current state without blocking ingestion.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := State{
		Status:        t.status,
		LastHeartbeat: t.lastHeartbeat,
	}
	if t.fields != nil {
		state.HeartbeatFields = make(map[string]interface{}, len(t.fields))
		for k, v := range t.fields {
			state.HeartbeatFields[k] = v
		}
	}
	return state
}

// Run drives periodic evaluation until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	t.logger.Info("starting heartbeat monitoring",
		"timeout", t.timeout.String(),
		"interval", t.interval.String())

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("stopping heartbeat monitoring")
			return
		case <-ticker.C:
			t.Evaluate(t.now())
		}
	}
}

func (t *Tracker) publish(category string, fields map[string]interface{}) {
	if err := t.notifier.Publish(sink.NewNotification(category, fields)); err != nil {
		t.logger.Error("failed to publish liveness alert",
			"category", category,
			"error", err)
	}
}

func (t *Tracker) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if t.metrics != nil {
		fn(t.metrics)
	}
}
