package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/stevewoolley/IoT/internal/infrastructure/config"
)

// =============================================================================
// Fakes
// =============================================================================

// fakeToken is a paho token that completes immediately.
type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

// fakeClient is an in-memory paho client that records calls.
type fakeClient struct {
	mu sync.Mutex

	connectCalls int
	connectErr   error

	published []publishedMessage
	handlers  map[string]pahomqtt.MessageHandler

	subscribeErr error
}

type publishedMessage struct {
	topic   string
	qos     byte
	payload []byte
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]pahomqtt.MessageHandler)}
}

func (c *fakeClient) IsConnected() bool      { return true }
func (c *fakeClient) IsConnectionOpen() bool { return true }

func (c *fakeClient) Connect() pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectCalls++
	return &fakeToken{err: c.connectErr}
}

func (c *fakeClient) Disconnect(uint) {}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publishedMessage{
		topic:   topic,
		qos:     qos,
		payload: payload.([]byte),
	})
	return &fakeToken{}
}

func (c *fakeClient) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr == nil {
		c.handlers[topic] = callback
	}
	return &fakeToken{err: c.subscribeErr}
}

func (c *fakeClient) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(...string) pahomqtt.Token { return &fakeToken{} }

func (c *fakeClient) AddRoute(string, pahomqtt.MessageHandler) {}

func (c *fakeClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// fakeMessage implements pahomqtt.Message for handler tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// newTestSession returns a session wired to a fake transport client.
func newTestSession(client *fakeClient) *Session {
	s := NewSession(config.MQTTConfig{
		Endpoint: "example.com",
		Port:     8883,
		ClientID: "test",
		QoS:      1,
	})
	s.dial = func(*Session) (pahomqtt.Client, error) {
		return client, nil
	}
	return s
}

// =============================================================================
// Lifecycle Tests
// =============================================================================

func TestSession_StartsDisconnected(t *testing.T) {
	s := newTestSession(newFakeClient())
	if s.IsConnected() {
		t.Error("IsConnected() = true on fresh session, want false")
	}
}

func TestSession_LazyConnectOnPublish(t *testing.T) {
	client := newFakeClient()
	s := newTestSession(client)

	if err := s.Publish("home/lr/status", []byte(`{"on":true}`), 1); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if !s.IsConnected() {
		t.Error("IsConnected() = false after first Publish, want true")
	}
	if client.connectCalls != 1 {
		t.Errorf("connect calls = %d, want 1", client.connectCalls)
	}
}

func TestSession_ConnectOnlyOnce(t *testing.T) {
	client := newFakeClient()
	s := newTestSession(client)

	// N publishes must produce exactly one connect.
	for i := 0; i < 10; i++ {
		if err := s.Publish("home/lr/status", []byte("x"), 1); err != nil {
			t.Fatalf("Publish() #%d error = %v", i, err)
		}
	}
	if err := s.Subscribe("home/lr/#", 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if client.connectCalls != 1 {
		t.Errorf("connect calls = %d, want 1", client.connectCalls)
	}
	if len(client.published) != 10 {
		t.Errorf("published messages = %d, want 10", len(client.published))
	}
}

func TestSession_ExplicitConnectIdempotent(t *testing.T) {
	client := newFakeClient()
	s := newTestSession(client)

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.Connect(); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}

	if client.connectCalls != 1 {
		t.Errorf("connect calls = %d, want 1", client.connectCalls)
	}
}

func TestSession_ConnectFailure(t *testing.T) {
	client := newFakeClient()
	client.connectErr = errors.New("broker unreachable")
	s := newTestSession(client)

	err := s.Publish("home/lr/status", []byte("x"), 1)
	if err == nil {
		t.Fatal("Publish() expected error when connect fails")
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Publish() error = %v, want ErrConnectionFailed", err)
	}
	if s.IsConnected() {
		t.Error("IsConnected() = true after failed connect, want false")
	}
}

func TestSession_DialFailure(t *testing.T) {
	s := newTestSession(newFakeClient())
	dialErr := errors.New("bad credentials")
	s.dial = func(*Session) (pahomqtt.Client, error) {
		return nil, dialErr
	}

	err := s.Connect()
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if !errors.Is(err, dialErr) {
		t.Errorf("Connect() error = %v, want wrapped dial error", err)
	}
}

// =============================================================================
// Publish / Subscribe Tests
// =============================================================================

func TestSession_PublishValidation(t *testing.T) {
	s := newTestSession(newFakeClient())

	if err := s.Publish("", []byte("x"), 1); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish(empty topic) error = %v, want ErrInvalidTopic", err)
	}
	if err := s.Publish("t", []byte("x"), 3); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish(qos 3) error = %v, want ErrInvalidQoS", err)
	}
	if s.IsConnected() {
		t.Error("validation failures must not trigger a connect")
	}
}

func TestSession_SubscribeValidation(t *testing.T) {
	s := newTestSession(newFakeClient())

	if err := s.Subscribe("", 1, func(string, []byte) error { return nil }); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty topic) error = %v, want ErrInvalidTopic", err)
	}
	if err := s.Subscribe("t", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) error = %v, want ErrSubscribeFailed", err)
	}
}

func TestSession_SubscribeDelivers(t *testing.T) {
	client := newFakeClient()
	s := newTestSession(client)

	received := make(chan string, 1)
	err := s.Subscribe("home/lr/#", 1, func(topic string, payload []byte) error {
		received <- topic
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	handler, ok := client.handlers["home/lr/#"]
	if !ok {
		t.Fatal("handler not registered with transport")
	}

	// Deliver a message the way the transport would: on its own goroutine.
	go handler(client, &fakeMessage{topic: "home/lr/on", payload: []byte("{}")})

	select {
	case topic := <-received:
		if topic != "home/lr/on" {
			t.Errorf("delivered topic = %q, want %q", topic, "home/lr/on")
		}
	case <-time.After(time.Second):
		t.Fatal("handler not invoked")
	}
}

func TestSession_SubscribeFailureDropsTracking(t *testing.T) {
	client := newFakeClient()
	client.subscribeErr = errors.New("not authorized")
	s := newTestSession(client)

	err := s.Subscribe("home/lr/#", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Fatalf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}

	s.subMu.RLock()
	defer s.subMu.RUnlock()
	if len(s.subscriptions) != 0 {
		t.Errorf("subscriptions tracked = %d after failure, want 0", len(s.subscriptions))
	}
}

func TestSession_HandlerPanicRecovered(t *testing.T) {
	client := newFakeClient()
	s := newTestSession(client)

	err := s.Subscribe("home/lr/#", 1, func(string, []byte) error {
		panic("handler bug")
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Must not crash the delivery goroutine.
	client.handlers["home/lr/#"](client, &fakeMessage{topic: "home/lr/on"})
}

func TestSession_RestoreSubscriptions(t *testing.T) {
	client := newFakeClient()
	s := newTestSession(client)

	if err := s.Subscribe("home/lr/#", 1, func(string, []byte) error { return nil }); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Simulate the transport reconnecting: handlers are re-registered.
	delete(client.handlers, "home/lr/#")
	s.restoreSubscriptions()

	if _, ok := client.handlers["home/lr/#"]; !ok {
		t.Error("subscription not restored after reconnect")
	}
}

func TestSession_RestoreSubscriptionsBeforeConnect(t *testing.T) {
	s := newTestSession(newFakeClient())

	// Nothing dialed yet; the restore callback must tolerate a nil client.
	s.restoreSubscriptions()

	if s.IsConnected() {
		t.Error("session reported connected without a connect")
	}
}
