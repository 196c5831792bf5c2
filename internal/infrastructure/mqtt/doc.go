// Package mqtt provides the publish/subscribe session and the hierarchical
// topic matching that every device daemon builds on.
//
// This package manages:
//   - Lazy-connecting broker sessions over mutual TLS
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with handler restoration on reconnect
//   - Suffix-chain topic tokenizing and command extraction
//   - Thing shadow topic and payload conventions
//
// # Architecture
//
// The daemons are thin edges on a cloud message bus: sensors publish device
// events to topics, and inbound topic-addressed commands are decomposed into
// a verb and optional argument by Match and dispatched to device actions.
//
//	device event → Session.Publish → broker
//	broker → Session handler → Match → command.Router → device action
//
// # Session lifecycle
//
// A Session is constructed disconnected and connects lazily on first use.
// It connects at most once per lifetime; reconnection after a dropped link
// belongs to the transport (auto-reconnect with exponential backoff), not to
// the session. Connect failures are not retried internally; callers own the
// retry policy, and in practice treat them as fatal at startup.
//
// # Usage
//
//	session := mqtt.NewSession(cfg.MQTT)
//	session.SetLogger(logger)
//
//	// Subscribe to all command invocations of a pattern.
//	err := session.Subscribe(mqtt.CommandWildcard("home/lr"), 1,
//	    func(topic string, payload []byte) error {
//	        inv, ok := mqtt.Match("home/lr", topic)
//	        ...
//	    })
package mqtt
