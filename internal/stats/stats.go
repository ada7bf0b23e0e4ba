// Package stats keeps cheap process-wide relay counters for the debug
// endpoint and the periodic metrics collector.
package stats

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// Collector tracks relay-wide counters. All fields are updated atomically.
type Collector struct {
	StartTime time.Time

	received      atomic.Uint64
	processed     atomic.Uint64
	duplicates    atomic.Uint64
	dropped       atomic.Uint64
	notifications atomic.Uint64
	errors        atomic.Uint64
}

func NewCollector() *Collector {
	return &Collector{StartTime: time.Now()}
}

func (c *Collector) IncReceived()      { c.received.Add(1) }
func (c *Collector) IncProcessed()     { c.processed.Add(1) }
func (c *Collector) IncDuplicates()    { c.duplicates.Add(1) }
func (c *Collector) IncDropped()       { c.dropped.Add(1) }
func (c *Collector) IncNotifications() { c.notifications.Add(1) }
func (c *Collector) IncErrors()        { c.errors.Add(1) }

func (c *Collector) Processed() uint64 { return c.processed.Load() }

// Snapshot returns current statistics
func (c *Collector) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"uptime":          time.Since(c.StartTime).String(),
		"received":        c.received.Load(),
		"processed":       c.processed.Load(),
		"duplicates":      c.duplicates.Load(),
		"dropped":         c.dropped.Load(),
		"notifications":   c.notifications.Load(),
		"errors":          c.errors.Load(),
		"rate_per_second": c.Rate(),
	}
}

// SnapshotJSON returns stats as JSON
func (c *Collector) SnapshotJSON() ([]byte, error) {
	return json.Marshal(c.Snapshot())
}

// Rate calculates the average processed message rate since start.
func (c *Collector) Rate() float64 {
	uptime := time.Since(c.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(c.processed.Load()) / uptime
}
