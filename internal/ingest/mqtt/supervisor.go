// Package mqtt owns the broker session: connection lifecycle, subscription
// setup, and reconnect-with-backoff on link loss.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"mqtt-trade-relay/config"
	"mqtt-trade-relay/internal/event"
	"mqtt-trade-relay/internal/logger"
	"mqtt-trade-relay/internal/metrics"
	"mqtt-trade-relay/internal/sink"
)

// State is the supervisor's connection state.
type State string

const (
	StateDisconnected     State = "disconnected"
	StateConnecting       State = "connecting"
	StateConnected        State = "connected"
	StateReconnectBackoff State = "reconnect_backoff"
)

const connectTimeout = 10 * time.Second

// MessageHandler receives every inbound message while connected.
type MessageHandler func(topic string, payload []byte)

// Supervisor drives the MQTT session through an explicit state machine
// instead of paho's implicit auto-reconnect, so backoff and alert-once
// semantics are testable on their own.
type Supervisor struct {
	cfg      *config.Config
	handler  MessageHandler
	notifier sink.Notifier
	logger   *logger.Logger
	metrics  *metrics.Metrics

	client mqtt.Client
	lost   chan struct{}

	mu            sync.Mutex
	state         State
	disconnectAt  time.Time
	outageAlerted bool
	retryCount    int

	now func() time.Time
}

// NewSupervisor builds a supervisor and its paho client. No connection is
// attempted until Run.
func NewSupervisor(cfg *config.Config, handler MessageHandler, notifier sink.Notifier, log *logger.Logger, m *metrics.Metrics) (*Supervisor, error) {
	s := &Supervisor{
		cfg:      cfg,
		handler:  handler,
		notifier: notifier,
		logger:   log,
		metrics:  m,
		lost:     make(chan struct{}, 1),
		state:    StateDisconnected,
		now:      time.Now,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(fmt.Sprintf("%s-%s", cfg.MQTT.ClientID, uuid.NewString()[:8])).
		SetUsername(cfg.MQTT.Username).
		SetPassword(cfg.MQTT.Password).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetKeepAlive(60 * time.Second)

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.logger.Error("mqtt connection lost", "error", err)
		s.safeMetricsUpdate(func(m *metrics.Metrics) { m.SetMQTTConnectionStatus(false) })
		select {
		case s.lost <- struct{}{}:
		default:
		}
	}

	if cfg.MQTT.TLS.Enable {
		tlsConfig, err := newTLSConfig(cfg.MQTT.TLS.CertFile, cfg.MQTT.TLS.KeyFile, cfg.MQTT.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	s.client = mqtt.NewClient(opts)
	return s, nil
}

// NewSupervisorWithClient builds a supervisor around a provided client
// (for testing).
func NewSupervisorWithClient(cfg *config.Config, client mqtt.Client, handler MessageHandler, notifier sink.Notifier, log *logger.Logger, m *metrics.Metrics) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		handler:  handler,
		notifier: notifier,
		logger:   log,
		metrics:  m,
		client:   client,
		lost:     make(chan struct{}, 1),
		state:    StateDisconnected,
		now:      time.Now,
	}
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run drives the session until ctx is cancelled. It blocks; callers start it
// in its own goroutine.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		s.setState(StateConnecting)

		if err := s.connectAndSubscribe(); err != nil {
			s.logger.Error("mqtt connection attempt failed", "error", err)
			// A subscribe failure leaves the transport up, and paho rejects
			// Connect on a connected client. Drop the session so the next
			// attempt starts clean.
			if s.client.IsConnected() {
				s.client.Disconnect(0)
			}
		} else {
			s.handleConnected()

			select {
			case <-ctx.Done():
				s.shutdown()
				return
			case <-s.lost:
			}
		}

		s.noteDisconnected()
		s.setState(StateReconnectBackoff)

		if !s.waitBackoff(ctx) {
			s.shutdown()
			return
		}
	}
}

func (s *Supervisor) connectAndSubscribe() error {
	token := s.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connection timeout to %s", s.cfg.MQTT.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	// Clean session: every connection needs a fresh subscription set.
	for _, suffix := range event.Suffixes() {
		topic := s.cfg.MQTT.TopicPrefix + suffix
		subToken := s.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			s.handler(msg.Topic(), msg.Payload())
		})
		if !subToken.WaitTimeout(connectTimeout) {
			return fmt.Errorf("subscription timeout for topic %s", topic)
		}
		if err := subToken.Error(); err != nil {
			return fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
		}
		s.logger.Debug("subscribed to topic", "topic", topic)
	}

	return nil
}

func (s *Supervisor) handleConnected() {
	s.mu.Lock()
	s.state = StateConnected
	downtime := time.Duration(0)
	if !s.disconnectAt.IsZero() {
		downtime = s.now().Sub(s.disconnectAt)
	}
	s.disconnectAt = time.Time{}
	s.outageAlerted = false
	s.retryCount = 0
	s.mu.Unlock()

	s.safeMetricsUpdate(func(m *metrics.Metrics) { m.SetMQTTConnectionStatus(true) })

	if downtime > 0 {
		s.logger.Info("reconnected to mqtt broker",
			"broker", s.cfg.MQTT.Broker,
			"downtime", downtime.String())
		return
	}
	s.logger.Info("connected to mqtt broker", "broker", s.cfg.MQTT.Broker)
}

func (s *Supervisor) noteDisconnected() {
	s.mu.Lock()
	if s.disconnectAt.IsZero() {
		s.disconnectAt = s.now()
	}
	s.mu.Unlock()
}

// waitBackoff sleeps the current backoff delay, firing the sustained-outage
// alert if the threshold elapses mid-wait. Returns false when ctx was
// cancelled.
func (s *Supervisor) waitBackoff(ctx context.Context) bool {
	delay := s.nextDelay()
	s.logger.Info("mqtt reconnect scheduled",
		"delay", delay.String(),
		"attempt", s.attempt())
	s.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncMQTTReconnects() })

	deadline := s.now().Add(delay)
	for {
		s.maybeOutageAlert()

		remaining := deadline.Sub(s.now())
		if remaining <= 0 {
			return true
		}

		wait := remaining
		if until := s.untilOutageAlert(); until > 0 && until < wait {
			wait = until
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

// nextDelay computes exponential backoff capped at the configured maximum,
// with up to ±10% jitter.
func (s *Supervisor) nextDelay() time.Duration {
	s.mu.Lock()
	attempt := s.retryCount
	s.retryCount++
	s.mu.Unlock()

	base := s.cfg.Reconnect.InitialDelayDuration()
	max := s.cfg.Reconnect.MaxDelayDuration()

	delay := base
	for i := 0; i < attempt && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}

	jitter := time.Duration(rand.Int63n(int64(delay)/5+1)) - delay/10
	return delay + jitter
}

func (s *Supervisor) attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryCount
}

func (s *Supervisor) untilOutageAlert() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outageAlerted || s.disconnectAt.IsZero() {
		return 0
	}
	return s.disconnectAt.Add(s.cfg.Reconnect.OutageAlertAfterDuration()).Sub(s.now())
}

// maybeOutageAlert emits the unreachable alert once per outage after the
// configured threshold.
func (s *Supervisor) maybeOutageAlert() {
	s.mu.Lock()
	if s.outageAlerted || s.disconnectAt.IsZero() {
		s.mu.Unlock()
		return
	}
	downtime := s.now().Sub(s.disconnectAt)
	threshold := s.cfg.Reconnect.OutageAlertAfterDuration()
	if downtime < threshold {
		s.mu.Unlock()
		return
	}
	s.outageAlerted = true
	s.mu.Unlock()

	s.logger.Warn("mqtt broker unreachable beyond threshold",
		"downtime", downtime.String(),
		"threshold", threshold.String())
	s.safeMetricsUpdate(func(m *metrics.Metrics) { m.IncOutageAlerts() })

	n := sink.NewNotification(sink.CategoryBrokerUnreachable, map[string]interface{}{
		"downtime_seconds": int64(downtime.Seconds()),
		"broker":           s.cfg.MQTT.Broker,
	})
	if err := s.notifier.Publish(n); err != nil {
		s.logger.Error("failed to publish outage alert", "error", err)
	}
}

func (s *Supervisor) shutdown() {
	s.logger.Info("disconnecting from mqtt broker")
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	s.setState(StateDisconnected)
	s.safeMetricsUpdate(func(m *metrics.Metrics) { m.SetMQTTConnectionStatus(false) })
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Supervisor) safeMetricsUpdate(fn func(*metrics.Metrics)) {
	if s.metrics != nil {
		fn(s.metrics)
	}
}

func newTLSConfig(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caCertPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
