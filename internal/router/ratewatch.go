package router

import (
	"strings"
	"sync"
	"time"

	"mqtt-trade-relay/internal/event"
	"mqtt-trade-relay/internal/logger"
)

const rateWindow = time.Minute

// rateWatch flags topics that suddenly chatter far above their expected
// rate, which usually means an upstream malfunction. Periodic topics
// (heartbeat, session stats) are exempt.
type rateWatch struct {
	threshold int
	cooldown  time.Duration
	logger    *logger.Logger

	mu          sync.Mutex
	timestamps  map[string][]time.Time
	lastWarning map[string]time.Time
}

func newRateWatch(threshold int, cooldown time.Duration, log *logger.Logger) *rateWatch {
	return &rateWatch{
		threshold:   threshold,
		cooldown:    cooldown,
		logger:      log,
		timestamps:  make(map[string][]time.Time),
		lastWarning: make(map[string]time.Time),
	}
}

func (w *rateWatch) observe(topic string, now time.Time) {
	if exemptTopic(topic) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-rateWindow)
	recent := w.timestamps[topic][:0]
	for _, ts := range w.timestamps[topic] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	recent = append(recent, now)
	w.timestamps[topic] = recent

	if len(recent) <= w.threshold {
		return
	}
	if now.Sub(w.lastWarning[topic]) < w.cooldown {
		return
	}

	w.lastWarning[topic] = now
	w.logger.Warn("high message rate on topic",
		"topic", topic,
		"countLastMinute", len(recent),
		"threshold", w.threshold)
}

func exemptTopic(topic string) bool {
	return strings.HasSuffix(topic, event.TopicHeartbeat) ||
		strings.HasSuffix(topic, event.TopicSessionStats)
}
