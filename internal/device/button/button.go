package button

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/stevewoolley/IoT/internal/infrastructure/config"
)

// Action is a physical button transition.
type Action int

// Button transitions.
const (
	// Press is the button being pushed down.
	Press Action = iota

	// Release is the button being let go.
	Release
)

// String returns the action name for logging.
func (a Action) String() string {
	if a == Press {
		return "press"
	}
	return "release"
}

// Value returns the payload value configured for this action.
func (a Action) Value(cfg config.ButtonConfig) string {
	if a == Press {
		return cfg.HighValue
	}
	return cfg.LowValue
}

// Handler receives button transitions. Called on the gpio event goroutine;
// long work should be handed off.
type Handler func(Action)

// Watcher owns a requested gpio line and delivers edge events as button
// actions until closed.
type Watcher struct {
	line *gpiocdev.Line
}

// Watch requests the configured gpio line and invokes handler on every
// button transition.
//
// The line bias follows cfg.PullUpEnabled: a pulled-up line is grounded by
// the button, so a falling edge is a press; a pulled-down line is driven
// high by the button, so a rising edge is a press.
//
// Parameters:
//   - cfg: Button configuration (chip, pin, bias)
//   - handler: Callback for each press or release
//
// Returns:
//   - *Watcher: Active watcher; Close releases the line
//   - error: If the line cannot be requested
func Watch(cfg config.ButtonConfig, handler Handler) (*Watcher, error) {
	pullUp := cfg.PullUpEnabled()

	bias := gpiocdev.WithPullUp
	if !pullUp {
		bias = gpiocdev.WithPullDown
	}

	line, err := gpiocdev.RequestLine(cfg.Chip, cfg.Pin,
		gpiocdev.AsInput,
		bias,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			handler(edgeAction(evt.Type, pullUp))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("requesting %s line %d: %w", cfg.Chip, cfg.Pin, err)
	}

	return &Watcher{line: line}, nil
}

// Close releases the gpio line.
func (w *Watcher) Close() error {
	return w.line.Close()
}

// edgeAction maps an edge event to a button action given the line bias.
func edgeAction(edge gpiocdev.LineEventType, pullUp bool) Action {
	rising := edge == gpiocdev.LineEventRisingEdge
	if rising != pullUp {
		return Press
	}
	return Release
}
