package sink

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"mqtt-trade-relay/config"
	"mqtt-trade-relay/internal/logger"
	"mqtt-trade-relay/internal/metrics"
)

// Conn is the subset of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	IsConnected() bool
	Close()
}

// NATSNotifier publishes notifications as JSON messages on
// "<prefix>.<category>" subjects.
type NATSNotifier struct {
	conn    Conn
	prefix  string
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewNATSNotifier connects to the configured NATS servers and returns a
// publishing notifier.
func NewNATSNotifier(cfg *config.SinkConfig, log *logger.Logger, m *metrics.Metrics) (*NATSNotifier, error) {
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("no NATS server URLs provided")
	}

	opts := []nats.Option{
		nats.Name("mqtt-trade-relay"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("sink disconnected from NATS server", "error", err)
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			log.Info("sink reconnected to NATS server", "url", conn.ConnectedUrl())
		}),
	}

	conn, err := nats.Connect(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS server: %w", err)
	}

	log.Info("sink connected to NATS server", "url", conn.ConnectedUrl())

	return &NATSNotifier{
		conn:    conn,
		prefix:  cfg.SubjectPrefix,
		logger:  log,
		metrics: m,
	}, nil
}

// NewNATSNotifierWithConn builds a notifier around an existing connection
// (for testing).
func NewNATSNotifierWithConn(conn Conn, subjectPrefix string, log *logger.Logger, m *metrics.Metrics) *NATSNotifier {
	return &NATSNotifier{
		conn:    conn,
		prefix:  subjectPrefix,
		logger:  log,
		metrics: m,
	}
}

// Publish implements Notifier.
func (n *NATSNotifier) Publish(notification Notification) error {
	if !n.conn.IsConnected() {
		n.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncNotifications("error") })
		return fmt.Errorf("not connected to NATS server")
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		n.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncNotifications("error") })
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	subject := n.subjectFor(notification.Category)
	if err := n.conn.Publish(subject, payload); err != nil {
		n.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncNotifications("error") })
		n.logger.Error("failed to publish notification",
			"error", err,
			"category", notification.Category,
			"subject", subject)
		return err
	}

	n.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncNotifications("success") })
	n.logger.Debug("published notification",
		"category", notification.Category,
		"subject", subject,
		"payloadSize", len(payload))

	return nil
}

// Close closes the underlying connection.
func (n *NATSNotifier) Close() {
	n.logger.Info("disconnecting sink from NATS server")
	n.conn.Close()
}

// subjectFor converts a notification category to a NATS subject under the
// configured prefix ("trading/trade/completed" -> "<prefix>.trading.trade.completed").
func (n *NATSNotifier) subjectFor(category string) string {
	return n.prefix + "." + strings.ReplaceAll(category, "/", ".")
}

func (n *NATSNotifier) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if n.metrics != nil {
		fn(n.metrics)
	}
}
