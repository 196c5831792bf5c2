// button-pub watches a GPIO button and publishes its transitions.
//
// Each press and release publishes a one-field JSON document to every
// configured topic and reports the same field to the thing shadow, so both
// live subscribers and the device's cloud state see the transition.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/stevewoolley/IoT/internal/device/button"
	"github.com/stevewoolley/IoT/internal/infrastructure/config"
	"github.com/stevewoolley/IoT/internal/infrastructure/logging"
	"github.com/stevewoolley/IoT/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const daemonName = "button-pub"

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default(daemonName)
	log.Info("starting button-pub",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, daemonName, cfg.Thing.Name)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// The session connects lazily on the first publish: a button that is
	// never pressed never opens a connection.
	session := mqtt.NewSession(cfg.MQTT)
	session.SetLogger(log.With("component", "mqtt"))
	defer func() {
		log.Info("disconnecting from broker")
		session.Close()
	}()

	qos := byte(cfg.MQTT.QoS)
	publish := func(action button.Action) {
		doc := map[string]any{cfg.Button.Source: action.Value(cfg.Button)}

		payload, err := json.Marshal(doc)
		if err != nil {
			log.Error("encoding button payload", "error", err)
			return
		}

		for _, topic := range cfg.Topics {
			if err := session.Publish(topic, payload, qos); err != nil {
				log.Error("publish failed", "topic", topic, "error", err)
			}
		}

		shadow, err := mqtt.ShadowPayload(mqtt.Reported, doc)
		if err != nil {
			log.Error("encoding shadow payload", "error", err)
			return
		}
		if err := session.Publish(mqtt.ThingShadowUpdate(cfg.Thing.Name), shadow, qos); err != nil {
			log.Error("shadow publish failed", "error", err)
		}
	}

	watcher, err := button.Watch(cfg.Button, func(action button.Action) {
		log.Info("button", "action", action.String(), "pin", cfg.Button.Pin)
		publish(action)
	})
	if err != nil {
		return fmt.Errorf("watching button: %w", err)
	}
	defer func() {
		log.Info("releasing gpio line")
		if closeErr := watcher.Close(); closeErr != nil {
			log.Error("error releasing gpio line", "error", closeErr)
		}
	}()
	log.Info("button watcher started",
		"chip", cfg.Button.Chip,
		"pin", cfg.Button.Pin,
		"pull_up", cfg.Button.PullUpEnabled(),
	)

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("button-pub stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses IOT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("IOT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
