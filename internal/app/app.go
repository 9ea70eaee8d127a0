package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"audioconv/internal/config"
	"audioconv/internal/metrics"
	"audioconv/internal/services"
	"audioconv/internal/store"
	"audioconv/internal/store/blob"
	"audioconv/internal/store/primary"

	log "github.com/sirupsen/logrus" // Use logrus
)

// App holds the wired components shared by the CLI commands.
type App struct {
	Config *config.Config

	Blobs     store.BlobStore
	TaskQueue *store.AsynqTaskQueue
	JobStore  store.JobStore
	Metrics   *metrics.Collector

	// primaryStore is nil when no database is configured.
	primaryStore *primary.StoreImpl

	Converter         services.Converter
	Notifier          *services.SlackNotifier
	ConversionService *services.ConversionService
}

// NewApp wires every component from cfg. The Redis connection is lazy,
// so a missing broker only surfaces on the first enqueue or lookup.
func NewApp(cfg *config.Config) (*App, error) {
	ctx := context.Background()
	app := &App{Config: cfg}

	ConfigureLogging(cfg)
	app.Metrics = metrics.NewCollector()

	if err := app.initBlobStore(); err != nil {
		return nil, err
	}
	if err := app.initTaskQueue(); err != nil {
		app.cleanupPartialInit()
		return nil, err
	}
	if err := app.initJobStore(ctx); err != nil {
		app.cleanupPartialInit()
		return nil, err
	}
	if err := app.initConversionService(); err != nil {
		app.cleanupPartialInit()
		return nil, err
	}

	log.Debug("Application initialization complete.")
	return app, nil
}

// ConfigureLogging applies log.level and log.format to the standard logrus logger.
func ConfigureLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", cfg.Log.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)
	if strings.EqualFold(cfg.Log.Format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

// --- Private Helper Methods ---

func (a *App) initBlobStore() error {
	fs, err := blob.NewFileStore(a.Config.Storage.UploadDir, a.Config.Storage.OutputDir)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}
	a.Blobs = fs
	return nil
}

func (a *App) initTaskQueue() error {
	qc := a.Config.Queue
	// asynq keeps task state and results in the broker, so a separate
	// result backend would never see a finished job.
	if qc.ResultBackend != "" && qc.ResultBackend != qc.BrokerURL {
		log.Warn("queue.result_backend (CELERY_RESULT_BACKEND) differs from queue.broker_url and is ignored; job results are read from the broker")
	}
	q, err := store.NewAsynqTaskQueue(store.TaskQueueOptions{
		BrokerURL: qc.BrokerURL,
		Queue:     qc.Name,
		Retention: qc.Retention,
		MaxRetry:  qc.MaxRetry,
	})
	if err != nil {
		return fmt.Errorf("init task queue: %w", err)
	}
	a.TaskQueue = q
	return nil
}

func (a *App) initJobStore(ctx context.Context) error {
	if a.Config.Database.DSN == "" {
		log.Debug("database.dsn not set, job history disabled")
		a.JobStore = store.NoopJobStore{}
		return nil
	}
	ps, err := primary.NewPrimaryStore(ctx, a.Config.Database.DSN)
	if err != nil {
		return fmt.Errorf("init primary store: %w", err)
	}
	a.primaryStore = ps
	a.JobStore = ps
	return nil
}

func (a *App) initConversionService() error {
	cfg := a.Config
	converter, err := services.NewConverter(cfg.Conversion.Engine, cfg.Conversion.FFmpegPath, cfg.Conversion.OutputFormat)
	if err != nil {
		return fmt.Errorf("init converter: %w", err)
	}
	a.Converter = converter

	a.Notifier = services.NewSlackNotifier(
		cfg.Notification.SlackWebhookURL,
		cfg.Notification.BaseURL,
		cfg.Notification.Timeout,
		a.Metrics,
	)
	if !a.Notifier.Enabled() {
		log.Info("SLACK_WEBHOOK_URL not set, Slack notifications disabled")
	}

	a.ConversionService = services.NewConversionService(services.ConversionServiceDeps{
		Blobs:        a.Blobs,
		Converter:    converter,
		Notifier:     a.Notifier,
		Metrics:      a.Metrics,
		OutputFormat: cfg.Conversion.OutputFormat,
		Suffix:       cfg.Conversion.Suffix,
	})
	return nil
}

// Ping checks the broker and, if configured, the database.
func (a *App) Ping(ctx context.Context) error {
	if err := a.TaskQueue.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if a.primaryStore != nil {
		if err := a.primaryStore.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	return nil
}

// HasDatabase reports whether job history is persisted.
func (a *App) HasDatabase() bool {
	return a.primaryStore != nil
}

// Close releases the queue connections and the database pool.
func (a *App) Close() {
	a.cleanupPartialInit()
}

func (a *App) cleanupPartialInit() {
	if a.TaskQueue != nil {
		if err := a.TaskQueue.Close(); err != nil {
			log.Printf("Error closing task queue: %v", err)
		}
		a.TaskQueue = nil
	}
	if a.primaryStore != nil {
		a.primaryStore.Close()
		a.primaryStore = nil
	}
}
