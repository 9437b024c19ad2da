package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorged/config"
	"gorged/core"
	"gorged/database"
	"gorged/interceptor"
	"gorged/logger"
	"gorged/metrics"
	"gorged/pipeline"
	"gorged/transport"
)

func expandTildeCmd(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// buildPipeline compiles the catalog and the configured enablement rules.
// Both failures are configuration errors and abort startup.
func buildPipeline(rec *metrics.Recorder) (*pipeline.Pipeline, error) {
	reg, err := interceptor.Default()
	if err != nil {
		return nil, err
	}
	rules, err := interceptor.ParseRules(config.AppConfig.Interceptors.Rules)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{pipeline.WithMetrics(rec)}
	if config.AppConfig.Events.Record && database.DB != nil {
		opts = append(opts, pipeline.WithEventSink(database.EventSink{}))
	}
	p, err := pipeline.New(reg, rules, opts...)
	if err != nil {
		return nil, err
	}
	logger.Info("Pipeline: %d of %d interceptors enabled", len(p.Enabled()), reg.Len())
	return p, nil
}

// buildProxyOptions loads the CA and derives the set of hosts worth
// intercepting from the enabled interceptors.
func buildProxyOptions(p *pipeline.Pipeline, port string, pause *core.PauseSwitch, rec *metrics.Recorder) (core.ProxyOptions, error) {
	ca, err := core.LoadCA(config.AppConfig.Proxy.CACertPath, config.AppConfig.Proxy.CAKeyPath)
	if err != nil {
		return core.ProxyOptions{}, fmt.Errorf("%w. Run 'gorged proxy init-ca' first", err)
	}
	hostPattern := interceptor.AggregatePattern(p.Enabled())
	hosts, err := interceptor.NewHostMatcher(hostPattern)
	if err != nil {
		return core.ProxyOptions{}, fmt.Errorf("compiling host pattern: %w", err)
	}
	logger.ProxyDebug("Proxy: intercepting hosts matching %s", hostPattern)

	return core.ProxyOptions{
		Port:         port,
		CA:           ca,
		MaxBodyBytes: config.AppConfig.Proxy.MaxBodyBytes,
		Hosts:        hosts,
		MitmAllHosts: config.AppConfig.Proxy.MitmAllHosts,
		Pause:        pause,
		Metrics:      rec,
	}, nil
}

// buildHook returns the in-process pipeline, or a worker delegate when
// proxy.delegate_socket is configured. The returned func releases the
// delegate's connection.
func buildHook(p *pipeline.Pipeline, rec *metrics.Recorder) (core.ResponseHook, func()) {
	addr := config.AppConfig.Proxy.DelegateSocket
	if addr == "" {
		return p, func() {}
	}
	client := transport.NewClient(addr,
		transport.WithTimeout(config.AppConfig.Proxy.DelegateTimeout),
		transport.WithClientMetrics(rec),
	)
	logger.ProxyInfo("Proxy: delegating rewrites to %s", addr)
	return transport.NewDelegate(client, rec), func() { client.Close() }
}

// loadPauseSwitch reads the persisted pause state. Without a database the
// switch is memory only.
func loadPauseSwitch() *core.PauseSwitch {
	if database.DB == nil {
		return core.NewPauseSwitch(false, nil, nil)
	}
	pause, err := core.LoadPauseSwitch()
	if err != nil {
		logger.Error("Reading pause state: %v. Starting unpaused.", err)
		return core.NewPauseSwitch(false, database.GetPaused, database.SetPaused)
	}
	return pause
}
