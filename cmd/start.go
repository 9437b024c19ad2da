package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"gorged/api"
	"gorged/config"
	"gorged/core"
	"gorged/logger"
	"gorged/metrics"
)

// pauseRefreshInterval is how often a running proxy re-reads the pause
// setting written by 'proxy pause' when the API was unreachable.
const pauseRefreshInterval = 2 * time.Second

var (
	startServerPort string
	startProxyPort  string
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts all gorged services (admin API and MITM proxy)",
	Long: `Starts both the admin API server and the MITM proxy concurrently.
Press Ctrl+C to gracefully shut down all services.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		actualServerPort := startServerPort
		if !cmd.Flags().Changed("server-port") {
			actualServerPort = config.AppConfig.Server.Port
		}
		actualProxyPort := startProxyPort
		if !cmd.Flags().Changed("proxy-port") {
			actualProxyPort = config.AppConfig.Proxy.Port
		}
		logger.Info("Start Command: Server port %s, proxy port %s", actualServerPort, actualProxyPort)

		rec := metrics.NewRecorder(nil)
		p, err := buildPipeline(rec)
		if err != nil {
			return err
		}
		pause := loadPauseSwitch()
		opts, err := buildProxyOptions(p, actualProxyPort, pause, rec)
		if err != nil {
			return err
		}
		hook, closeHook := buildHook(p, rec)
		defer closeHook()

		ctx, stop := signalContext()
		defer stop()
		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			return serveAPI(gctx, actualServerPort, api.Services{Interceptors: p, Pause: pause, Metrics: rec})
		})
		g.Go(func() error {
			return core.StartMitmProxy(gctx, opts, hook)
		})
		g.Go(func() error {
			pause.RunRefresher(gctx, pauseRefreshInterval)
			return nil
		})

		logger.Info("Start Command: All services launched. Press Ctrl+C to exit.")
		if err := g.Wait(); err != nil {
			logger.Error("Start Command: %v", err)
			return err
		}
		logger.Info("Start Command: All services shut down.")
		return nil
	},
}

func init() {
	startCmd.Flags().StringVar(&startServerPort, "server-port", "8778", "Port for the API server (overrides config)")
	startCmd.Flags().StringVar(&startProxyPort, "proxy-port", "8777", "Port for the MITM proxy server (overrides config)")
	rootCmd.AddCommand(startCmd)
}
