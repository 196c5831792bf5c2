// Package journal persists a local log of dispatched commands.
//
// Each subscriber daemon records every command it dispatches (topic, verb,
// argument, outcome) into a single-table SQLite database. The journal is a
// diagnostic aid for at-least-once delivery: when a device action fires
// twice, the journal shows both deliveries and their outcomes.
//
// The journal implements command.Recorder, so wiring is one call:
//
//	j, err := journal.Open(cfg.Journal)
//	...
//	router.SetRecorder(j)
//
// Recording failures never fail a dispatch; the router logs and continues.
package journal
