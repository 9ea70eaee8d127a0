package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"audioconv/internal/app"
	"audioconv/internal/store"
	"audioconv/internal/worker"

	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	workerConcurrency int
	workerMetricsAddr string
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background conversion worker",
	Long:  `Starts the Asynq worker process that executes queued conversion jobs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get application context: %w", err)
		}

		if err := runWorker(cmd, appInstance); err != nil {
			log.Errorf("Worker exited with error: %v", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)

	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 0, "Number of concurrent jobs (overrides worker.concurrency)")
	workerCmd.Flags().StringVar(&workerMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. ':9090'")
}

// runWorker initializes and runs the Asynq worker server.
func runWorker(cmd *cobra.Command, appInstance *app.App) error {
	cfg := appInstance.Config

	concurrency := cfg.Worker.Concurrency
	if cmd.Flags().Changed("concurrency") {
		if workerConcurrency <= 0 {
			return fmt.Errorf("--concurrency must be positive, got %d", workerConcurrency)
		}
		concurrency = workerConcurrency
	}

	redisOpt, err := store.ParseRedisConnOpt(cfg.Queue.BrokerURL)
	if err != nil {
		return fmt.Errorf("broker: %w", err)
	}

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues:      cfg.Worker.Queues,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				taskID, _ := asynq.GetTaskID(ctx)
				log.WithFields(log.Fields{
					"task_id": taskID,
					"type":    task.Type(),
				}).Errorf("Asynq task failed: %v", err)
			}),
			Logger: log.StandardLogger(),
		},
	)

	// --- Register Job Handlers ---
	mux := asynq.NewServeMux()
	worker.RegisterHandlers(mux, worker.ConversionDeps{
		Runner:   appInstance.ConversionService,
		JobStore: appInstance.JobStore,
	})

	var metricsSrv *http.Server
	if workerMetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", appInstance.Metrics.Handler())
		metricsSrv = &http.Server{Addr: workerMetricsAddr, Handler: metricsMux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			log.Infof("Serving worker metrics on http://%s/metrics", workerMetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	// --- Start Server & Handle Shutdown ---
	log.Infof("Starting Asynq worker server (Concurrency: %d, Queues: %v, Engine: %s)...",
		concurrency, cfg.Worker.Queues, appInstance.Converter.Name())
	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("failed to start Asynq server: %w", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	log.Info("Shutdown signal received. Initiating graceful shutdown...")
	srv.Stop()
	srv.Shutdown()

	if metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(ctx); err != nil {
			log.Warnf("Metrics server shutdown: %v", err)
		}
	}

	log.Info("Worker shutdown complete.")
	return nil
}
