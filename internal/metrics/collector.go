package metrics

import (
	"sync"
	"time"

	"mqtt-trade-relay/internal/stats"
)

// Collector periodically samples process counters into gauges.
type Collector struct {
	metrics  *Metrics
	stats    *stats.Collector
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewCollector(m *Metrics, st *stats.Collector, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		metrics:  m,
		stats:    st,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins periodic collection.
func (c *Collector) Start() {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stop:
				return
			case <-ticker.C:
				c.collect()
			}
		}
	}()
}

// Stop halts collection and waits for the sampling goroutine to exit.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}

func (c *Collector) collect() {
	c.metrics.SetUptimeSeconds(time.Since(c.stats.StartTime).Seconds())
	c.metrics.SetMessageRate(c.stats.Rate())
}
