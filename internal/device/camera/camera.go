package camera

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/stevewoolley/IoT/internal/infrastructure/config"
)

// Timestamp layouts.
const (
	// fileTimestampLayout names capture files, sortable and filesystem safe.
	fileTimestampLayout = "2006-01-02-15-04-05"

	// displayTimestampLayout is the human-readable form used in object tags.
	displayTimestampLayout = "2006/01/02 3:04 PM MST"
)

// runner executes a capture binary. Replaced in tests.
type runner func(ctx context.Context, name string, args ...string) error

// Camera captures stills and video by shelling out to the platform's
// capture binaries.
type Camera struct {
	cfg config.CameraConfig
	run runner
}

// New creates a Camera from configuration.
func New(cfg config.CameraConfig) *Camera {
	return &Camera{cfg: cfg, run: runCommand}
}

// runCommand executes a binary and surfaces its combined output on failure.
func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, out)
	}
	return nil
}

// Snapshot captures a still image to path. The capture is bounded by the
// configured capture window.
func (c *Camera) Snapshot(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CaptureWindow())
	defer cancel()

	if err := c.run(ctx, c.cfg.StillBinary, c.stillArgs(path)...); err != nil {
		return fmt.Errorf("capturing still to %s: %w", path, err)
	}
	return nil
}

// Record captures video to path for the given duration.
func (c *Camera) Record(ctx context.Context, path string, duration time.Duration) error {
	window := c.cfg.CaptureWindow() + duration
	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	if err := c.run(ctx, c.cfg.VideoBinary, c.videoArgs(path, duration)...); err != nil {
		return fmt.Errorf("recording video to %s: %w", path, err)
	}
	return nil
}

// stillArgs builds the still-capture command line.
func (c *Camera) stillArgs(path string) []string {
	args := []string{
		"-n", // no preview, the device is headless
		"-o", path,
		"--width", strconv.Itoa(c.cfg.Width),
		"--height", strconv.Itoa(c.cfg.Height),
	}
	if c.cfg.Rotation != 0 {
		args = append(args, "--rotation", strconv.Itoa(c.cfg.Rotation))
	}
	return args
}

// videoArgs builds the video-capture command line.
func (c *Camera) videoArgs(path string, duration time.Duration) []string {
	args := []string{
		"-n",
		"-o", path,
		"-t", strconv.FormatInt(duration.Milliseconds(), 10),
		"--width", strconv.Itoa(c.cfg.Width),
		"--height", strconv.Itoa(c.cfg.Height),
	}
	if c.cfg.Rotation != 0 {
		args = append(args, "--rotation", strconv.Itoa(c.cfg.Rotation))
	}
	return args
}

// Filename returns a timestamped capture name, "porch-2021-06-01-12-00-00.jpg".
func (c *Camera) Filename(t time.Time) string {
	return fmt.Sprintf("%s-%s.jpg", c.cfg.Source, FileTimestamp(t))
}

// WebFilename returns the fixed snapshot name served by the web UI. Each
// snapshot overwrites the last so the UI always shows the newest frame.
func (c *Camera) WebFilename() string {
	return c.cfg.Source + ".jpg"
}

// VideoFilename returns a timestamped recording name.
func (c *Camera) VideoFilename(t time.Time) string {
	return fmt.Sprintf("%s-%s.h264", c.cfg.Source, FileTimestamp(t))
}

// Source returns the configured source name used in filenames and tags.
func (c *Camera) Source() string {
	return c.cfg.Source
}

// FileTimestamp formats a time for use in filenames.
func FileTimestamp(t time.Time) string {
	return t.Format(fileTimestampLayout)
}

// Timestamp formats a time for human-readable object tags.
func Timestamp(t time.Time) string {
	return t.Format(displayTimestampLayout)
}
