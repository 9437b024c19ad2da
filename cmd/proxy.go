package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"gorged/config"
	"gorged/core"
	"gorged/database"
	"gorged/logger"
	"gorged/metrics"
	"gorged/models"
)

var standaloneProxyPort string

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Manages the MITM proxy server (can be run standalone or as part of 'start')",
}

var proxyStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Starts the MITM proxy server",
	Long: `Starts the Man-in-the-Middle proxy that rewrites HTML responses.
You will need to configure your browser or system to use this proxy.
A CA certificate must be generated (using 'proxy init-ca') and trusted by your client.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		portToUse := standaloneProxyPort
		if !cmd.Flags().Changed("port") {
			portToUse = config.AppConfig.Proxy.Port
		}

		rec := metrics.NewRecorder(nil)
		p, err := buildPipeline(rec)
		if err != nil {
			return err
		}
		pause := loadPauseSwitch()
		opts, err := buildProxyOptions(p, portToUse, pause, rec)
		if err != nil {
			return err
		}
		hook, closeHook := buildHook(p, rec)
		defer closeHook()

		ctx, stop := signalContext()
		defer stop()
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return core.StartMitmProxy(gctx, opts, hook) })
		g.Go(func() error {
			pause.RunRefresher(gctx, pauseRefreshInterval)
			return nil
		})
		return g.Wait()
	},
}

var proxyInitCACmd = &cobra.Command{
	Use:         "init-ca",
	Short:       "Initializes (generates) the root CA certificate and key for the MITM proxy",
	Annotations: map[string]string{noDatabase: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		certPath := config.AppConfig.Proxy.CACertPath
		keyPath := config.AppConfig.Proxy.CAKeyPath
		if certPath == "" || keyPath == "" {
			return fmt.Errorf("CA certificate or key path is not defined in configuration")
		}
		if err := core.GenerateAndSaveCA(certPath, keyPath); err != nil {
			return fmt.Errorf("generating CA: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "CA certificate written to %s\n", certPath)
		fmt.Fprintln(cmd.OutOrStdout(), "Please import it into your browser/system's trust store.")
		return nil
	},
}

// setPaused asks a running server to change the pause state. When no server
// answers, the setting is written to the database and a running proxy picks
// it up on its next refresh.
func setPaused(ctx context.Context, paused bool) (viaAPI bool, err error) {
	body, _ := json.Marshal(models.PauseState{Paused: paused})
	url := fmt.Sprintf("http://127.0.0.1:%s/api/pause", config.AppConfig.Server.Port)

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, apiErr := http.DefaultClient.Do(req)
	if apiErr == nil {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return true, nil
		}
		apiErr = fmt.Errorf("unexpected status %s", resp.Status)
	}
	logger.Debug("Pause via API failed (%v); writing setting directly", apiErr)

	if err := database.SetPaused(paused); err != nil {
		return false, err
	}
	return false, nil
}

func pauseCommand(use, short string, paused bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			viaAPI, err := setPaused(cmd.Context(), paused)
			if err != nil {
				return err
			}
			state := "resumed"
			if paused {
				state = "paused"
			}
			if viaAPI {
				fmt.Fprintf(cmd.OutOrStdout(), "Rewriting %s.\n", state)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Rewriting %s (saved; a running proxy applies it within %s).\n", state, pauseRefreshInterval)
			}
			return nil
		},
	}
}

var proxyStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows whether rewriting is paused",
	RunE: func(cmd *cobra.Command, args []string) error {
		paused, err := database.GetPaused()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "paused: %t\n", paused)
		return nil
	},
}

func init() {
	proxyStartCmd.Flags().StringVarP(&standaloneProxyPort, "port", "p", "8777", "Port for the proxy server to listen on (overrides config)")

	proxyCmd.AddCommand(proxyStartCmd)
	proxyCmd.AddCommand(proxyInitCACmd)
	proxyCmd.AddCommand(pauseCommand("pause", "Stops rewriting; responses pass through unchanged", true))
	proxyCmd.AddCommand(pauseCommand("resume", "Resumes rewriting", false))
	proxyCmd.AddCommand(proxyStatusCmd)
	rootCmd.AddCommand(proxyCmd)
}
