package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"gorged/api"
	"gorged/config"
	"gorged/logger"
	"gorged/metrics"
)

var standaloneServerPort string

// serveAPI runs the admin API until ctx is cancelled.
func serveAPI(ctx context.Context, port string, svc api.Services) error {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           api.NewHandler(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("API: Shutdown signal received...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("API: Graceful shutdown failed: %v", err)
		}
	}()

	logger.Info("API: Listening on :%s", port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	logger.Info("API: Stopped.")
	return nil
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the admin API on its own (the proxy is started by 'start' or 'proxy start')",
	RunE: func(cmd *cobra.Command, args []string) error {
		port := standaloneServerPort
		if !cmd.Flags().Changed("port") {
			port = config.AppConfig.Server.Port
		}

		rec := metrics.NewRecorder(nil)
		p, err := buildPipeline(rec)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()
		return serveAPI(ctx, port, api.Services{
			Interceptors: p,
			Pause:        loadPauseSwitch(),
			Metrics:      rec,
		})
	},
}

func init() {
	serverCmd.Flags().StringVarP(&standaloneServerPort, "port", "p", "8778", "Port for the server to listen on (overrides config)")
	rootCmd.AddCommand(serverCmd)
}
