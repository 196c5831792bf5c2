// supervisor-sub subscribes for process-control commands and relays them to
// the local supervisord over its unix socket.
//
// The segment after the matched topic pattern selects the verb:
//
//	getAllProcessInfo   report every process state to the thing shadow
//	startProcess <name> start a supervised process
//	stopProcess <name>  stop a supervised process
//
// Every dispatch is journalled locally for diagnosing at-least-once
// redelivery.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/stevewoolley/IoT/internal/command"
	"github.com/stevewoolley/IoT/internal/infrastructure/config"
	"github.com/stevewoolley/IoT/internal/infrastructure/logging"
	"github.com/stevewoolley/IoT/internal/infrastructure/mqtt"
	"github.com/stevewoolley/IoT/internal/journal"
	"github.com/stevewoolley/IoT/internal/supervisor"
)

// Version information - set at build time via ldflags
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const daemonName = "supervisor-sub"

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
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default(daemonName)
	log.Info("starting supervisor-sub",
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

	// Open the command journal
	var j *journal.Journal
	if cfg.Journal.Enabled {
		j, err = journal.Open(cfg.Journal)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer func() {
			log.Info("closing journal")
			if closeErr := j.Close(); closeErr != nil {
				log.Error("error closing journal", "error", closeErr)
			}
		}()
		log.Info("journal opened", "path", cfg.Journal.Path)
	} else {
		log.Info("journal disabled")
	}

	sup, err := supervisor.New(cfg.Supervisor)
	if err != nil {
		return fmt.Errorf("creating supervisor client: %w", err)
	}
	log.Info("supervisor client ready", "socket", cfg.Supervisor.SocketPath)

	session := mqtt.NewSession(cfg.MQTT)
	session.SetLogger(log.With("component", "mqtt"))
	defer func() {
		log.Info("disconnecting from broker")
		session.Close()
	}()

	d := &daemon{cfg: cfg, log: log, session: session, sup: sup}

	qos := byte(cfg.MQTT.QoS)
	for _, pattern := range cfg.Topics {
		router := command.NewRouter(pattern)
		router.SetLogger(log.With("component", "router", "pattern", pattern))
		if j != nil {
			router.SetRecorder(j)
		}

		router.Handle("getAllProcessInfo", d.handleGetAllProcessInfo)
		router.Handle("startProcess", d.handleStartProcess)
		router.Handle("stopProcess", d.handleStopProcess)

		filter := mqtt.CommandWildcard(pattern)
		if err := session.Subscribe(filter, qos, router.MessageHandler(ctx)); err != nil {
			return fmt.Errorf("subscribing to %s: %w", filter, err)
		}
		log.Info("subscribed", "filter", filter)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("supervisor-sub stopped")
	return nil
}

// daemon holds the wired collaborators for the command handlers.
type daemon struct {
	cfg     *config.Config
	log     *logging.Logger
	session *mqtt.Session
	sup     *supervisor.Client
}

// handleGetAllProcessInfo reports every supervised process state to the
// thing shadow.
func (d *daemon) handleGetAllProcessInfo(_ context.Context, _ command.Message) error {
	processes, err := d.sup.GetAllProcessInfo()
	if err != nil {
		return err
	}

	summary := supervisor.Summary(processes)
	d.log.Info("process info", "supervised", summary)

	payload, err := mqtt.ShadowPayload(mqtt.Reported, map[string]any{"supervised": summary})
	if err != nil {
		return err
	}
	topic := mqtt.ThingShadowUpdate(d.cfg.Thing.Name)
	return d.session.Publish(topic, payload, byte(d.cfg.MQTT.QoS))
}

// handleStartProcess starts the process named by the command argument.
func (d *daemon) handleStartProcess(_ context.Context, msg command.Message) error {
	return d.sup.StartProcess(msg.Argument)
}

// handleStopProcess stops the process named by the command argument.
func (d *daemon) handleStopProcess(_ context.Context, msg command.Message) error {
	return d.sup.StopProcess(msg.Argument)
}

// getConfigPath returns the configuration file path.
// Uses IOT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("IOT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
