// Package metrics exposes prometheus instrumentation for the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all prometheus collectors for the relay.
type Metrics struct {
	messagesTotal      *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	reconnectsTotal    prometheus.Counter
	outageAlertsTotal  prometheus.Counter
	timeoutAlertsTotal prometheus.Counter

	brokerConnected prometheus.Gauge
	upstreamOnline  prometheus.Gauge
	lastHeartbeat   prometheus.Gauge
	dedupEntries    prometheus.Gauge
	uptimeSeconds   prometheus.Gauge
	messageRate     prometheus.Gauge
}

// NewMetrics creates and registers all relay metrics. A nil registerer skips
// registration (used by tests that only need the struct).
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Broker messages by processing outcome",
		}, []string{"status"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_notifications_total",
			Help: "Notifications published to the sink by outcome",
		}, []string{"status"}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_mqtt_reconnects_total",
			Help: "MQTT reconnection attempts",
		}),
		outageAlertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_outage_alerts_total",
			Help: "Sustained broker outage alerts emitted",
		}),
		timeoutAlertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_heartbeat_timeout_alerts_total",
			Help: "Heartbeat timeout alerts emitted",
		}),
		brokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_mqtt_connected",
			Help: "Whether the MQTT session is connected (1) or not (0)",
		}),
		upstreamOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_upstream_online",
			Help: "Upstream bot liveness: 1 online, 0 offline, -1 unknown",
		}),
		lastHeartbeat: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_last_heartbeat_timestamp_seconds",
			Help: "Unix time of the last heartbeat received",
		}),
		dedupEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_dedup_entries",
			Help: "Live entries in the dedup ledger",
		}),
		uptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_uptime_seconds",
			Help: "Relay process uptime",
		}),
		messageRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_message_rate_per_second",
			Help: "Average processed message rate since start",
		}),
	}

	m.upstreamOnline.Set(-1)

	if reg != nil {
		collectors := []prometheus.Collector{
			m.messagesTotal,
			m.notificationsTotal,
			m.reconnectsTotal,
			m.outageAlertsTotal,
			m.timeoutAlertsTotal,
			m.brokerConnected,
			m.upstreamOnline,
			m.lastHeartbeat,
			m.dedupEntries,
			m.uptimeSeconds,
			m.messageRate,
		}
		for _, c := range collectors {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

// IncMessagesTotal counts a message outcome: received, processed, malformed,
// unknown_topic, stale, duplicate.
func (m *Metrics) IncMessagesTotal(status string) {
	m.messagesTotal.WithLabelValues(status).Inc()
}

// IncNotifications counts a sink publish outcome: success or error.
func (m *Metrics) IncNotifications(status string) {
	m.notificationsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncMQTTReconnects() { m.reconnectsTotal.Inc() }
func (m *Metrics) IncOutageAlerts()   { m.outageAlertsTotal.Inc() }
func (m *Metrics) IncTimeoutAlerts()  { m.timeoutAlertsTotal.Inc() }

func (m *Metrics) SetMQTTConnectionStatus(connected bool) {
	if connected {
		m.brokerConnected.Set(1)
	} else {
		m.brokerConnected.Set(0)
	}
}

// SetUpstreamOnline records the liveness state as a gauge: 1 online,
// 0 offline, -1 unknown.
func (m *Metrics) SetUpstreamOnline(v float64) { m.upstreamOnline.Set(v) }

func (m *Metrics) SetLastHeartbeat(unixSeconds float64) { m.lastHeartbeat.Set(unixSeconds) }
func (m *Metrics) SetDedupEntries(n float64)            { m.dedupEntries.Set(n) }
func (m *Metrics) SetUptimeSeconds(s float64)           { m.uptimeSeconds.Set(s) }
func (m *Metrics) SetMessageRate(r float64)             { m.messageRate.Set(r) }
