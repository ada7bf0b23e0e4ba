package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"mqtt-trade-relay/config"
	"mqtt-trade-relay/internal/logger"
	"mqtt-trade-relay/internal/sink"
)

// MockToken implements mqtt.Token for testing
type MockToken struct {
	err  error
	done chan struct{}
}

func NewMockToken(err error) *MockToken {
	t := &MockToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *MockToken) Wait() bool                       { return true }
func (t *MockToken) WaitTimeout(d time.Duration) bool { return true }
func (t *MockToken) Error() error                     { return t.err }
func (t *MockToken) Done() <-chan struct{}            { return t.done }

// MockClient implements mqtt.Client for testing. Like paho with
// auto-reconnect off, Connect on an already connected client fails.
type MockClient struct {
	mu             sync.Mutex
	connected      bool
	connectErr     error
	failSubscribes int
	connects       int
	disconnects    int
	subscriptions  map[string]mqtt.MessageHandler
}

func NewMockClient() *MockClient {
	return &MockClient{
		subscriptions: make(map[string]mqtt.MessageHandler),
	}
}

func (m *MockClient) Connect() mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if m.connected {
		return NewMockToken(errors.New("already connected"))
	}
	if m.connectErr == nil {
		m.connected = true
	}
	return NewMockToken(m.connectErr)
}

func (m *MockClient) Disconnect(quiesce uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	m.disconnects++
}

func (m *MockClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSubscribes > 0 {
		m.failSubscribes--
		return NewMockToken(errors.New("subscribe failed"))
	}
	m.subscriptions[topic] = callback
	return NewMockToken(nil)
}

func (m *MockClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return NewMockToken(nil)
}

func (m *MockClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	return NewMockToken(nil)
}

func (m *MockClient) Unsubscribe(topics ...string) mqtt.Token { return NewMockToken(nil) }
func (m *MockClient) AddRoute(topic string, callback mqtt.MessageHandler) {}

func (m *MockClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockClient) IsConnectionOpen() bool                  { return m.IsConnected() }
func (m *MockClient) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

// deliver invokes the registered handler for topic, as the paho network
// loop would.
func (m *MockClient) deliver(topic string, payload []byte) bool {
	m.mu.Lock()
	handler, ok := m.subscriptions[topic]
	m.mu.Unlock()
	if !ok {
		return false
	}
	handler(m, &mockMessage{topic: topic, payload: payload})
	return true
}

func (m *MockClient) subscribedTopics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := make([]string, 0, len(m.subscriptions))
	for t := range m.subscriptions {
		topics = append(topics, t)
	}
	return topics
}

func (m *MockClient) disconnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnects
}

func (m *MockClient) connectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// dropConnection simulates the broker closing the link, as precedes an
// OnConnectionLost callback.
func (m *MockClient) dropConnection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

// mockMessage implements mqtt.Message for testing
type mockMessage struct {
	topic   string
	payload []byte
}

func (m *mockMessage) Duplicate() bool   { return false }
func (m *mockMessage) Qos() byte         { return 1 }
func (m *mockMessage) Retained() bool    { return false }
func (m *mockMessage) Topic() string     { return m.topic }
func (m *mockMessage) MessageID() uint16 { return 0 }
func (m *mockMessage) Payload() []byte   { return m.payload }
func (m *mockMessage) Ack()              {}

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

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notifications)
}

func newTestConfig() *config.Config {
	return &config.Config{
		MQTT: config.MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "test-relay",
			TopicPrefix: "polyspike/",
		},
		Reconnect: config.ReconnectConfig{
			InitialDelay:     "1s",
			MaxDelay:         "60s",
			OutageAlertAfter: "5m",
		},
	}
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
