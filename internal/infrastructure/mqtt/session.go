package mqtt

import (
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/stevewoolley/IoT/internal/infrastructure/config"
)

// Session owns a connection to the message broker and exposes publish and
// subscribe on top of it.
//
// A Session is constructed disconnected and connects lazily on the first
// Publish or Subscribe call (or on an explicit Connect). It connects at most
// once per lifetime: transport-level drops after the first successful
// connect are healed by the underlying client's auto-reconnect with
// exponential backoff, and tracked subscriptions are restored on reconnect.
//
// Thread Safety:
//   - All methods are safe for concurrent use; the lazy-connect check and
//     the connect attempt happen under one lock, so concurrent first calls
//     still produce a single connect.
//
// Delivery:
//   - Subscribe registers the handler and returns promptly. Handlers are
//     invoked on the transport's own goroutines, asynchronously relative to
//     the caller, ordered per topic as received from the transport.
type Session struct {
	cfg config.MQTTConfig

	// dial builds the underlying transport client. Replaced in tests.
	dial func(*Session) (pahomqtt.Client, error)

	// mu guards the connected flag and the connect attempt.
	mu        sync.Mutex
	client    pahomqtt.Client
	connected bool

	// subscriptions tracks active subscriptions for restoration after a
	// transport-level reconnect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the optional logging interface for the session.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// subscription holds subscription details for restoration on reconnect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines by the transport. They should
// not block for unbounded time; the device daemons accept blocking I/O per
// message for sequential low-rate traffic.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// NewSession creates a disconnected Session for the configured broker.
//
// No network I/O happens here; the connection is established by the first
// Publish/Subscribe call or an explicit Connect.
func NewSession(cfg config.MQTTConfig) *Session {
	return &Session{
		cfg:           cfg,
		dial:          defaultDial,
		subscriptions: make(map[string]subscription),
	}
}

// SetLogger sets a logger for publish/subscribe activity and handler errors.
// If not set, the session is silent.
func (s *Session) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// Connect establishes the broker connection.
//
// It configures transport credentials (root CA, certificate, private key)
// and endpoint, then connects. Calling Connect on an already-connected
// session is a no-op. Failures are wrapped in ErrConnectionFailed and are
// not retried internally.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked()
}

// connectLocked performs the single connect attempt. Caller holds mu.
func (s *Session) connectLocked() error {
	if s.connected {
		return nil
	}

	client, err := s.dial(s)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	s.client = client

	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	s.connected = true
	return nil
}

// ensureConnected lazily connects on first use.
func (s *Session) ensureConnected() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked()
}

// IsConnected reports whether the session has completed its connect.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Publish sends a message to the specified topic, connecting first if the
// session has not yet connected.
//
// Parameters:
//   - topic: The topic to publish to
//   - payload: The message payload (conventionally JSON)
//   - qos: Quality of Service level (0, 1, or 2)
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (s *Session) Publish(topic string, payload []byte, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	if err := s.ensureConnected(); err != nil {
		return err
	}

	if logger := s.getLogger(); logger != nil {
		logger.Info("publish", "topic", topic, "payload", string(payload))
	}

	token := s.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(defaultOpTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultOpTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// Subscribe registers a handler for messages on the specified topic filter,
// connecting first if the session has not yet connected.
//
// Filters can include transport wildcards:
//   - + (single-level): "home/+/door"
//   - # (multi-level): "home/lr/#"
//
// The registration itself is synchronous and returns once the broker
// acknowledges it; message delivery is asynchronous relative to the caller.
// Subscriptions are restored automatically after a transport reconnect.
//
// Parameters:
//   - topic: The topic filter to subscribe to
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//   - handler: Callback invoked for each message
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (s *Session) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	if err := s.ensureConnected(); err != nil {
		return err
	}

	if logger := s.getLogger(); logger != nil {
		logger.Info("subscribe", "topic", topic)
	}

	s.subMu.Lock()
	s.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	s.subMu.Unlock()

	token := s.client.Subscribe(topic, qos, s.wrapHandler(handler))
	if !token.WaitTimeout(defaultOpTimeout) {
		s.dropSubscription(topic)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultOpTimeout)
	}
	if err := token.Error(); err != nil {
		s.dropSubscription(topic)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	return nil
}

// Close disconnects from the broker. The device daemons run for the process
// lifetime, so this is only exercised on shutdown.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil && s.connected {
		s.client.Disconnect(defaultDisconnectQuiesce)
	}
	s.connected = false
}

// dropSubscription removes a failed subscription from tracking.
func (s *Session) dropSubscription(topic string) {
	s.subMu.Lock()
	delete(s.subscriptions, topic)
	s.subMu.Unlock()
}

// restoreSubscriptions re-subscribes to all tracked topics after a
// transport-level reconnect. Errors are ignored; the transport retries the
// connection and this runs again.
//
// Runs on the transport's OnConnect goroutine, so the client is read under
// mu rather than relying on the write in connectLocked being visible.
func (s *Session) restoreSubscriptions() {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return
	}

	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for _, sub := range s.subscriptions {
		client.Subscribe(sub.topic, sub.qos, s.wrapHandler(sub.handler))
	}
}

// getLogger returns the current logger (may be nil).
func (s *Session) getLogger() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and logging. A
// failure inside one message's handling never terminates the subscriber.
func (s *Session) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := s.getLogger(); logger != nil {
					logger.Error("message handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := s.getLogger(); logger != nil {
				logger.Warn("message handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
