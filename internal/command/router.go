package command

import (
	"context"
	"encoding/json"

	"github.com/stevewoolley/IoT/internal/infrastructure/mqtt"
)

// Dispatch outcomes, as recorded by the optional Recorder.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeNoCommand = "no_command"
	OutcomeUnknown   = "unknown_command"
)

// Message is one inbound command delivery, fully parsed.
type Message struct {
	// Topic is the concrete topic the message arrived on.
	Topic string

	// Command is the verb extracted relative to the router's pattern.
	Command string

	// Argument is the optional argument segment, empty when absent.
	Argument string

	// Payload is the decoded JSON document. A payload that fails to parse
	// is treated as absent (nil); dispatch proceeds on the topic alone.
	Payload map[string]any
}

// Handler performs the device action bound to a verb.
//
// Handlers must be idempotent-safe to re-invoke: delivery is at-least-once.
// A handler error marks this message as having produced no effect; it is
// logged and dropped, never fatal.
type Handler func(ctx context.Context, msg Message) error

// Logger is the logging interface used by the router.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Recorder receives the outcome of every dispatch, typically the command
// journal. Recording failures are logged and otherwise ignored.
type Recorder interface {
	Record(ctx context.Context, topic, command, argument, outcome string) error
}

// Router maps command verbs extracted from inbound topics to device actions.
//
// The verb set is closed: it is fixed by the Handle calls made before the
// router is attached to a subscription, and anything outside it falls
// through to the "unrecognized command" warning. Verbs are matched by exact
// string equality.
//
// A Router is not safe for concurrent mutation; register all handlers
// before subscribing. Dispatch itself is read-only and safe from the
// transport's delivery goroutines.
type Router struct {
	pattern  string
	handlers map[string]Handler
	logger   Logger
	recorder Recorder
}

// NewRouter creates a router for command invocations of the given topic
// pattern.
func NewRouter(pattern string) *Router {
	return &Router{
		pattern:  pattern,
		handlers: make(map[string]Handler),
	}
}

// SetLogger sets the router's logger. If not set, the router is silent.
func (r *Router) SetLogger(logger Logger) {
	r.logger = logger
}

// SetRecorder sets the dispatch-outcome recorder (optional).
func (r *Router) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// Handle binds a verb to a device action. Registering the same verb twice
// replaces the earlier binding.
func (r *Router) Handle(verb string, handler Handler) {
	r.handlers[verb] = handler
}

// Pattern returns the topic pattern this router matches against.
func (r *Router) Pattern() string {
	return r.pattern
}

// Dispatch extracts a command invocation from topic and invokes the bound
// handler. Per the propagation policy, nothing here terminates the
// subscriber: unmatched topics, unknown verbs and handler failures are
// logged and dropped.
func (r *Router) Dispatch(ctx context.Context, topic string, payload []byte) {
	inv, ok := mqtt.Match(r.pattern, topic)
	if !ok {
		if r.logger != nil {
			r.logger.Warn("no command", "topic", topic)
		}
		r.record(ctx, topic, inv, OutcomeNoCommand)
		return
	}

	handler, ok := r.handlers[inv.Command]
	if !ok {
		if r.logger != nil {
			r.logger.Warn("unrecognized command", "command", inv.Command, "topic", topic)
		}
		r.record(ctx, topic, inv, OutcomeUnknown)
		return
	}

	msg := Message{
		Topic:    topic,
		Command:  inv.Command,
		Argument: inv.Argument,
		Payload:  r.decodePayload(topic, payload),
	}

	if err := handler(ctx, msg); err != nil {
		if r.logger != nil {
			r.logger.Error("command failed",
				"command", inv.Command,
				"argument", inv.Argument,
				"topic", topic,
				"error", err,
			)
		}
		r.record(ctx, topic, inv, OutcomeError)
		return
	}

	r.record(ctx, topic, inv, OutcomeOK)
}

// MessageHandler adapts the router to the session's handler signature.
// Dispatch never propagates an error to the transport: a failed message is
// a message that produced no effect.
func (r *Router) MessageHandler(ctx context.Context) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		r.Dispatch(ctx, topic, payload)
		return nil
	}
}

// decodePayload parses the payload as a JSON object. Malformed or empty
// payloads are treated as absent.
func (r *Router) decodePayload(topic string, payload []byte) map[string]any {
	if len(payload) == 0 {
		return nil
	}

	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		if r.logger != nil {
			r.logger.Debug("malformed payload treated as absent", "topic", topic, "error", err)
		}
		return nil
	}
	return doc
}

// record reports a dispatch outcome to the recorder, if one is set.
func (r *Router) record(ctx context.Context, topic string, inv mqtt.Invocation, outcome string) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Record(ctx, topic, inv.Command, inv.Argument, outcome); err != nil {
		if r.logger != nil {
			r.logger.Warn("journal record failed", "topic", topic, "error", err)
		}
	}
}
