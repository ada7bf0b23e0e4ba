// Package router dispatches decoded broker messages: dedup gate, liveness
// updates, snapshot caching, and forwarding to the notification sink.
package router

import (
	"errors"
	"time"

	"mqtt-trade-relay/internal/dedup"
	"mqtt-trade-relay/internal/event"
	"mqtt-trade-relay/internal/liveness"
	"mqtt-trade-relay/internal/logger"
	"mqtt-trade-relay/internal/metrics"
	"mqtt-trade-relay/internal/sink"
	"mqtt-trade-relay/internal/snapshot"
	"mqtt-trade-relay/internal/stats"
)

// Config holds router tuning knobs.
type Config struct {
	// StaleWindow drops retained messages older than process start minus
	// this window. Zero disables the filter.
	StaleWindow time.Duration
	// RateThreshold is the per-topic messages-per-minute level that triggers
	// a spam warning. Zero disables the watch.
	RateThreshold int
	// RateCooldown is the minimum gap between spam warnings per topic.
	RateCooldown time.Duration
}

// Router routes one inbound broker message per call. Calls may run
// concurrently; the ledger, tracker and store serialize internally, and the
// dedup check-and-insert is atomic per key.
type Router struct {
	codec    *event.Codec
	ledger   *dedup.Ledger
	tracker  *liveness.Tracker
	store    *snapshot.Store
	notifier sink.Notifier
	logger   *logger.Logger
	metrics  *metrics.Metrics
	stats    *stats.Collector

	staleWindow time.Duration
	startupTime time.Time
	rate        *rateWatch
	now         func() time.Time
}

func NewRouter(
	cfg Config,
	codec *event.Codec,
	ledger *dedup.Ledger,
	tracker *liveness.Tracker,
	store *snapshot.Store,
	notifier sink.Notifier,
	log *logger.Logger,
	m *metrics.Metrics,
	st *stats.Collector,
) *Router {
	r := &Router{
		codec:       codec,
		ledger:      ledger,
		tracker:     tracker,
		store:       store,
		notifier:    notifier,
		logger:      log,
		metrics:     m,
		stats:       st,
		staleWindow: cfg.StaleWindow,
		startupTime: time.Now(),
		now:         time.Now,
	}
	if cfg.RateThreshold > 0 {
		r.rate = newRateWatch(cfg.RateThreshold, cfg.RateCooldown, log)
	}
	return r
}

// Route handles a single inbound message. Decode failures and duplicates are
// logged and dropped; they never stop processing of subsequent messages.
func (r *Router) Route(topic string, payload []byte) {
	r.statsUpdate(func(c *stats.Collector) { c.IncReceived() })
	r.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncMessagesTotal("received") })

	ev, warnings, err := r.codec.Decode(topic, payload)
	if err != nil {
		r.statsUpdate(func(c *stats.Collector) { c.IncErrors() })
		if errors.Is(err, event.ErrUnknownTopic) {
			r.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncMessagesTotal("unknown_topic") })
			r.logger.Debug("no event kind for topic", "topic", topic)
			return
		}
		r.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncMessagesTotal("malformed") })
		r.logger.Error("failed to decode message",
			"topic", topic,
			"payloadSize", len(payload),
			"error", err)
		return
	}

	for _, w := range warnings {
		r.logger.Warn("payload anomaly", "topic", topic, "detail", w)
	}

	if r.isStale(ev) {
		r.statsUpdate(func(c *stats.Collector) { c.IncDropped() })
		r.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncMessagesTotal("stale") })
		r.logger.Debug("ignoring old retained message",
			"topic", topic,
			"timestamp", ev.Timestamp.Unix())
		return
	}

	if r.rate != nil {
		r.rate.observe(topic, r.now())
	}

	if ev.Key != "" && !r.ledger.Observe(ev.Key) {
		r.statsUpdate(func(c *stats.Collector) { c.IncDuplicates() })
		r.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncMessagesTotal("duplicate") })
		r.logger.Info("duplicate event ignored", "topic", topic, "key", ev.Key)
		return
	}
	r.safeMetricsUpdate(func(m *metrics.Metrics) { m.SetDedupEntries(float64(r.ledger.Len())) })

	if ev.Kind == event.KindHeartbeat {
		// Heartbeats feed the liveness tracker only; they never produce an
		// outward notification by themselves.
		r.tracker.RecordHeartbeat(ev.Timestamp, ev.Fields)
		r.markProcessed()
		return
	}

	switch ev.Kind {
	case event.KindBalanceUpdate:
		r.store.SetBalance(ev.Timestamp, ev.Fields)
	case event.KindSessionStats:
		r.store.SetStats(ev.Timestamp, ev.Fields)
		// Periodic stats refresh the query cache without notifying.
		r.markProcessed()
		return
	}

	n := sink.NewNotification(ev.Kind.Category(), ev.Fields)
	n.Timestamp = ev.Timestamp
	if err := r.notifier.Publish(n); err != nil {
		r.statsUpdate(func(c *stats.Collector) { c.IncErrors() })
		r.logger.Error("failed to forward event",
			"topic", topic,
			"kind", string(ev.Kind),
			"error", err)
		return
	}

	r.statsUpdate(func(c *stats.Collector) { c.IncNotifications() })
	r.markProcessed()
}

func (r *Router) isStale(ev *event.Event) bool {
	if r.staleWindow <= 0 {
		return false
	}
	return ev.Timestamp.Before(r.startupTime.Add(-r.staleWindow))
}

func (r *Router) markProcessed() {
	r.statsUpdate(func(c *stats.Collector) { c.IncProcessed() })
	r.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncMessagesTotal("processed") })
}

func (r *Router) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if r.metrics != nil {
		fn(r.metrics)
	}
}

func (r *Router) statsUpdate(fn func(*stats.Collector)) {
	if r.stats != nil {
		fn(r.stats)
	}
}
