// Package button watches a gpio line for physical button transitions.
//
// The watcher requests the line through the gpio character device with
// edge detection on both edges and translates edges into Press and Release
// actions according to the configured bias. With the default pull-up bias
// the button grounds the line, so a falling edge is a press; with pull-down
// the mapping inverts.
package button
