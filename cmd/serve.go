package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"audioconv/internal/apihandlers"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	serveAddr string // Listen address
	servePort int    // Listen port
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the upload and download HTTP API",
	Long: `Starts the HTTP server that accepts uploads on POST /convert, reports job
state on GET /status/:task_id and serves results on GET /download/:filename.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		cfg := appInstance.Config

		host := cfg.Server.Host
		if cmd.Flags().Changed("addr") {
			host = serveAddr
		}
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		gin.SetMode(gin.ReleaseMode)
		handler := apihandlers.NewAPIHandler(appInstance)
		router := apihandlers.NewRouter(handler, appInstance.Metrics.Handler())

		srv := &http.Server{
			Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Infof("Starting %s API server on http://%s", cfg.Service.Name, srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err, ok := <-errCh:
			if ok {
				return fmt.Errorf("failed to run API server: %w", err)
			}
			return nil
		case <-shutdown:
		}

		log.Info("Shutdown signal received, draining requests...")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		log.Info("API server stopped.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "0.0.0.0", "Address to listen on (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 5000, "Port to listen on (overrides server.port / PORT)")
}
