// Package command dispatches topic-extracted command verbs to device
// actions.
//
// Each device daemon constructs one Router per subscribed topic pattern,
// binds its fixed set of verbs, and attaches the router's MessageHandler to
// the session subscription. Inbound topics are decomposed by the matcher in
// internal/infrastructure/mqtt; the verb selects the handler by exact string
// equality; an unrecognized verb is logged as a warning and dropped.
//
// Failures inside a single message's handling never terminate the
// subscriber: handler errors, unknown verbs and unmatched topics all result
// in "this message produced no effect" and processing continues. Payloads
// that fail to parse as JSON are treated as absent; dispatch is driven by
// the topic string alone.
//
// # Usage
//
//	router := command.NewRouter("home/porch")
//	router.SetLogger(logger)
//	router.Handle("snapshot", takeSnapshot)
//	router.Handle("record", startRecording)
//	session.Subscribe(mqtt.CommandWildcard(router.Pattern()), 1,
//	    router.MessageHandler(ctx))
package command
