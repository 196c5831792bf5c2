// Package camera captures stills and video on the device.
//
// Captures shell out to the platform's capture binaries (libcamera-still
// and libcamera-vid by default) with the configured resolution and
// rotation, bounded by a capture timeout. Filename helpers produce the
// timestamped names the rest of the pipeline expects: archived captures
// carry a sortable timestamp, while the web snapshot keeps a fixed name so
// each capture replaces the previous one.
package camera
