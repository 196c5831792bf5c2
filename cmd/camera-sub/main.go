// camera-sub subscribes for camera commands and runs the capture pipeline.
//
// Inbound topics are matched against each configured topic pattern; the
// segment after the pattern selects the verb:
//
//	snapshot    capture a still to the fixed web name and upload it
//	workspace   capture a timestamped still into the archive bucket
//	recognize   capture, archive, detect labels, tag, report on person
//	identify    capture, archive, search faces, tag matched identities
//	record      capture N seconds of video (N = argument) into the archive
//
// Every dispatch is journalled locally for diagnosing at-least-once
// redelivery.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/stevewoolley/IoT/internal/command"
	"github.com/stevewoolley/IoT/internal/device/camera"
	"github.com/stevewoolley/IoT/internal/infrastructure/config"
	"github.com/stevewoolley/IoT/internal/infrastructure/logging"
	"github.com/stevewoolley/IoT/internal/infrastructure/mqtt"
	"github.com/stevewoolley/IoT/internal/journal"
	"github.com/stevewoolley/IoT/internal/storage"
	"github.com/stevewoolley/IoT/internal/vision"
)

// Version information - set at build time via ldflags
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const daemonName = "camera-sub"

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// defaultRecordSeconds is the video length when the record command carries
// no argument.
const defaultRecordSeconds = 10

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
	log.Info("starting camera-sub",
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

	// Object store and image analysis clients
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("creating object store client: %w", err)
	}
	store.SetLogger(log.With("component", "storage"))

	analyzer, err := vision.New(ctx, cfg.Storage.Region, cfg.Vision)
	if err != nil {
		return fmt.Errorf("creating image analysis client: %w", err)
	}

	d := &daemon{
		cfg:      cfg,
		log:      log,
		session:  mqtt.NewSession(cfg.MQTT),
		cam:      camera.New(cfg.Camera),
		store:    store,
		analyzer: analyzer,
		now:      time.Now,
	}
	d.session.SetLogger(log.With("component", "mqtt"))
	defer func() {
		log.Info("disconnecting from broker")
		d.session.Close()
	}()

	// One router per configured pattern; subscribing triggers the session's
	// single lazy connect.
	qos := byte(cfg.MQTT.QoS)
	for _, pattern := range cfg.Topics {
		router := command.NewRouter(pattern)
		router.SetLogger(log.With("component", "router", "pattern", pattern))
		if j != nil {
			router.SetRecorder(j)
		}

		router.Handle("snapshot", d.handleSnapshot)
		router.Handle("workspace", d.handleWorkspace)
		router.Handle("recognize", d.handleRecognize)
		router.Handle("identify", d.handleIdentify)
		router.Handle("record", d.handleRecord)

		filter := mqtt.CommandWildcard(pattern)
		if err := d.session.Subscribe(filter, qos, router.MessageHandler(ctx)); err != nil {
			return fmt.Errorf("subscribing to %s: %w", filter, err)
		}
		log.Info("subscribed", "filter", filter)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("camera-sub stopped")
	return nil
}

// daemon holds the wired collaborators for the command handlers.
type daemon struct {
	cfg      *config.Config
	log      *logging.Logger
	session  *mqtt.Session
	cam      *camera.Camera
	store    *storage.Store
	analyzer *vision.Analyzer

	// now is the clock, replaced in tests.
	now func() time.Time
}

// handleSnapshot captures a still under the fixed web name and uploads it
// to the web bucket, replacing the previous frame.
func (d *daemon) handleSnapshot(ctx context.Context, _ command.Message) error {
	if d.cfg.Storage.WebBucket == "" {
		return fmt.Errorf("storage.web_bucket not configured")
	}

	now := d.now()
	filename := d.cam.WebFilename()
	if err := d.cam.Snapshot(ctx, filename); err != nil {
		return err
	}
	return d.store.Put(ctx, filename, d.cfg.Storage.WebBucket, d.captureTags(now))
}

// handleWorkspace captures a timestamped still into the archive bucket.
func (d *daemon) handleWorkspace(ctx context.Context, _ command.Message) error {
	if d.cfg.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket not configured")
	}

	now := d.now()
	filename := d.cam.Filename(now)
	if err := d.cam.Snapshot(ctx, filename); err != nil {
		return err
	}
	return d.store.Put(ctx, filename, d.cfg.Storage.Bucket, d.captureTags(now))
}

// handleRecognize captures and archives a still, asks the analysis service
// what it contains, tags the object with the result, and reports to the
// thing shadow when a person is in frame.
func (d *daemon) handleRecognize(ctx context.Context, _ command.Message) error {
	if d.cfg.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket not configured")
	}

	now := d.now()
	filename := d.cam.Filename(now)
	if err := d.cam.Snapshot(ctx, filename); err != nil {
		return err
	}

	bucket := d.cfg.Storage.Bucket
	if err := d.store.Put(ctx, filename, bucket, nil); err != nil {
		return err
	}

	labels, err := d.analyzer.DetectLabels(ctx, bucket, filename)
	if err != nil {
		return err
	}

	detected := vision.TagValue(vision.LabelNames(labels))
	d.log.Info("recognize result", "capture", filename, "labels", detected)

	tags := d.captureTags(now)
	tags["Recognize"] = detected
	if err := d.store.Tag(ctx, bucket, filename, tags); err != nil {
		return err
	}

	if vision.HasPerson(labels) {
		d.reportShadow(map[string]any{
			"recognize": detected,
			"capture":   filename,
		})
	}
	return nil
}

// handleIdentify captures and archives a still, searches the face
// collection, and tags the object with any matched identities.
func (d *daemon) handleIdentify(ctx context.Context, _ command.Message) error {
	if d.cfg.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket not configured")
	}

	now := d.now()
	filename := d.cam.Filename(now)
	if err := d.cam.Snapshot(ctx, filename); err != nil {
		return err
	}

	bucket := d.cfg.Storage.Bucket
	if err := d.store.Put(ctx, filename, bucket, d.captureTags(now)); err != nil {
		return err
	}

	names, err := d.analyzer.Identify(ctx, bucket, filename)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		d.log.Info("identify found no known faces", "capture", filename)
		return nil
	}

	d.log.Info("identify result", "capture", filename, "identities", names)
	return d.store.Tag(ctx, bucket, filename, map[string]string{
		"Identities": vision.TagValue(names),
	})
}

// handleRecord captures video into the archive bucket. The command argument
// is the length in seconds.
func (d *daemon) handleRecord(ctx context.Context, msg command.Message) error {
	if d.cfg.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket not configured")
	}

	seconds := defaultRecordSeconds
	if msg.Argument != "" {
		parsed, err := strconv.Atoi(msg.Argument)
		if err != nil || parsed <= 0 {
			return fmt.Errorf("invalid record duration %q", msg.Argument)
		}
		seconds = parsed
	}

	now := d.now()
	filename := d.cam.VideoFilename(now)
	if err := d.cam.Record(ctx, filename, time.Duration(seconds)*time.Second); err != nil {
		return err
	}
	return d.store.Put(ctx, filename, d.cfg.Storage.Bucket, d.captureTags(now))
}

// captureTags builds the standard object tags for a capture.
func (d *daemon) captureTags(now time.Time) map[string]string {
	return map[string]string{
		"Created": camera.Timestamp(now),
		"Source":  d.cam.Source(),
	}
}

// reportShadow publishes a reported-state document to the thing shadow.
// Shadow reporting is best effort; failures are logged and dropped.
func (d *daemon) reportShadow(doc map[string]any) {
	payload, err := mqtt.ShadowPayload(mqtt.Reported, doc)
	if err != nil {
		d.log.Error("encoding shadow payload", "error", err)
		return
	}
	topic := mqtt.ThingShadowUpdate(d.cfg.Thing.Name)
	if err := d.session.Publish(topic, payload, byte(d.cfg.MQTT.QoS)); err != nil {
		d.log.Error("shadow publish failed", "error", err)
	}
}

// getConfigPath returns the configuration file path.
// Uses IOT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("IOT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
