package cmd

import (
	"github.com/spf13/cobra"

	"gorged/config"
	"gorged/logger"
	"gorged/transport"
)

var workerSocketFlag string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Runs the rewrite pipeline out of process",
}

var workerServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves rewrite requests from proxies configured with proxy.delegate_socket",
	Long: `Listens on a unix socket (or tcp://host:port) and answers length-prefixed
rewrite requests with the rewritten document. Point a proxy at it with
proxy.delegate_socket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := workerSocketFlag
		if !cmd.Flags().Changed("socket") {
			addr = config.AppConfig.Worker.Socket
		}

		p, err := buildPipeline(nil)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()
		logger.Info("Worker: serving %d enabled interceptors", len(p.Enabled()))
		return transport.NewServer(p).ListenAndServe(ctx, addr)
	},
}

func init() {
	workerServeCmd.Flags().StringVar(&workerSocketFlag, "socket", "", "socket path or tcp://host:port to listen on (overrides worker.socket)")
	workerCmd.AddCommand(workerServeCmd)
	rootCmd.AddCommand(workerCmd)
}
