package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"gorged/interceptor"
	"gorged/logger"
)

type DefaultPaths struct {
	ConfigDir    string
	LogPathApp   string
	LogPathProxy string
	CACertPath   string
	CAKeyPath    string
	DBPath       string
	WorkerSocket string
	LogLevel     string
}

type Configuration struct {
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Server struct {
		Port    string `mapstructure:"port"`
		LogPath string `mapstructure:"log_path"`
	} `mapstructure:"server"`
	Proxy struct {
		Port         string `mapstructure:"port"`
		CACertPath   string `mapstructure:"ca_cert_path"`
		CAKeyPath    string `mapstructure:"ca_key_path"`
		LogPath      string `mapstructure:"log_path"`
		MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
		// DelegateSocket, when set, sends documents to a `worker serve`
		// process instead of rewriting them in-process.
		DelegateSocket  string        `mapstructure:"delegate_socket"`
		DelegateTimeout time.Duration `mapstructure:"delegate_timeout"`
		MitmAllHosts    bool          `mapstructure:"mitm_all_hosts"`
	} `mapstructure:"proxy"`
	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
	Interceptors struct {
		// Rules holds "<enable|disable>:<regex>" lines. Filled from either a
		// YAML list or a newline separated string.
		Rules []string `mapstructure:"-"`
	} `mapstructure:"interceptors"`
	Events struct {
		Record bool `mapstructure:"record"`
	} `mapstructure:"events"`
	Worker struct {
		Socket string `mapstructure:"socket"`
	} `mapstructure:"worker"`
}

var AppConfig Configuration

func expandTilde(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

func GetDefaultConfigPaths() DefaultPaths {
	var paths DefaultPaths
	userConfigDirBase, err := os.UserConfigDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not get user config dir: %v. Using current directory.\n", err)
		userConfigDirBase = "."
	}

	userConfigDir, err := expandTilde(userConfigDirBase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in user config dir '%s': %v. Using potentially literal path.\n", userConfigDirBase, err)
		userConfigDir = userConfigDirBase
	}

	paths.ConfigDir = filepath.Join(userConfigDir, "gorged")
	logDir := filepath.Join(paths.ConfigDir, "logs")

	paths.LogPathApp = filepath.Join(logDir, "app.log")
	paths.LogPathProxy = filepath.Join(logDir, "proxy.log")
	paths.CACertPath = filepath.Join(paths.ConfigDir, "gorged-ca.crt")
	paths.CAKeyPath = filepath.Join(paths.ConfigDir, "gorged-ca.key")
	paths.DBPath = filepath.Join(paths.ConfigDir, "gorged.db")
	paths.WorkerSocket = filepath.Join(paths.ConfigDir, "worker.sock")
	paths.LogLevel = "INFO"
	return paths
}

// ruleLines accepts the interceptors.rules value as a YAML list or as a
// single newline separated string (the GORGED_INTERCEPTORS_RULES form).
func ruleLines(raw interface{}) ([]string, error) {
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case string:
		var lines []string
		for _, line := range interceptor.SplitRuleLines(val) {
			if strings.TrimSpace(line) != "" {
				lines = append(lines, line)
			}
		}
		return lines, nil
	case []string:
		return val, nil
	case []interface{}:
		lines := make([]string, 0, len(val))
		for i, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("interceptors.rules[%d]: expected a string, got %T", i, item)
			}
			lines = append(lines, s)
		}
		return lines, nil
	default:
		return nil, fmt.Errorf("interceptors.rules: expected a list or a string, got %T", raw)
	}
}

func Init(cfgFile string, flagAppLogPath, flagProxyLogPath, flagLogLevel string) error {
	v := viper.New()

	defaults := GetDefaultConfigPaths()
	v.SetDefault("database.path", defaults.DBPath)
	v.SetDefault("server.port", "8778")
	v.SetDefault("server.log_path", defaults.LogPathApp)
	v.SetDefault("proxy.port", "8777")
	v.SetDefault("proxy.ca_cert_path", defaults.CACertPath)
	v.SetDefault("proxy.ca_key_path", defaults.CAKeyPath)
	v.SetDefault("proxy.log_path", defaults.LogPathProxy)
	v.SetDefault("proxy.max_body_bytes", 10<<20)
	v.SetDefault("proxy.delegate_socket", "")
	v.SetDefault("proxy.delegate_timeout", "5s")
	v.SetDefault("proxy.mitm_all_hosts", false)
	v.SetDefault("logging.level", defaults.LogLevel)
	v.SetDefault("interceptors.rules", []string{})
	v.SetDefault("events.record", true)
	v.SetDefault("worker.socket", defaults.WorkerSocket)

	if cfgFile != "" {
		expandedCfgFile, err := expandTilde(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in config file path '%s': %v. Trying original path.\n", cfgFile, err)
			expandedCfgFile = cfgFile
		}
		v.SetConfigFile(expandedCfgFile)
		v.SetConfigType("yaml")
	} else {
		v.AddConfigPath(defaults.ConfigDir)
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("GORGED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	configUsedMsg := "Using default/environment configuration."
	readErr := v.ReadInConfig()
	if readErr == nil {
		configUsedMsg = fmt.Sprintf("Using config file: %s", v.ConfigFileUsed())
	} else {
		if _, ok := readErr.(viper.ConfigFileNotFoundError); ok {
			if cfgFile != "" {
				fmt.Fprintf(os.Stderr, "Warning: Config file specified by flag (%s) not found: %v\n", cfgFile, readErr)
			}
		} else {
			fmt.Fprintf(os.Stderr, "Error reading config file %s: %v\n", v.ConfigFileUsed(), readErr)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Error unmarshalling configuration: %v\n", err)
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}
	rules, err := ruleLines(v.Get("interceptors.rules"))
	if err != nil {
		return err
	}
	cfg.Interceptors.Rules = rules

	// Apply flag overrides
	if flagAppLogPath != "" {
		cfg.Server.LogPath = flagAppLogPath
	}
	if flagProxyLogPath != "" {
		cfg.Proxy.LogPath = flagProxyLogPath
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = strings.ToUpper(flagLogLevel)
	}

	for _, p := range []struct {
		key  string
		path *string
	}{
		{"database.path", &cfg.Database.Path},
		{"server.log_path", &cfg.Server.LogPath},
		{"proxy.log_path", &cfg.Proxy.LogPath},
		{"proxy.ca_cert_path", &cfg.Proxy.CACertPath},
		{"proxy.ca_key_path", &cfg.Proxy.CAKeyPath},
		{"proxy.delegate_socket", &cfg.Proxy.DelegateSocket},
		{"worker.socket", &cfg.Worker.Socket},
	} {
		expanded, err := expandTilde(*p.path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Could not expand tilde in %s '%s': %v.\n", p.key, *p.path, err)
			continue
		}
		*p.path = expanded
	}
	AppConfig = cfg

	// Ensure directories exist
	if err := os.MkdirAll(filepath.Dir(AppConfig.Server.LogPath), 0750); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not create final app log directory %s: %v\n", filepath.Dir(AppConfig.Server.LogPath), err)
	}
	if err := os.MkdirAll(filepath.Dir(AppConfig.Proxy.LogPath), 0750); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not create final proxy log directory %s: %v\n", filepath.Dir(AppConfig.Proxy.LogPath), err)
	}
	if err := os.MkdirAll(defaults.ConfigDir, 0750); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not create main config directory %s: %v\n", defaults.ConfigDir, err)
	}

	// Initialize/Re-initialize loggers
	if err := logger.InitGlobalLoggers(AppConfig.Server.LogPath, AppConfig.Proxy.LogPath, AppConfig.Logging.Level); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to initialize global loggers with final config: %v\n", err)
		return fmt.Errorf("failed to initialize global loggers with final config: %w", err)
	}

	logger.Info(configUsedMsg)
	if readErr != nil && cfgFile != "" {
		logger.Error("Error occurred reading specified config file '%s': %v", cfgFile, readErr)
	}
	if flagAppLogPath != "" || flagProxyLogPath != "" || flagLogLevel != "" {
		logger.Info("Log path/level flags may have overridden config file/defaults.")
	}
	if AppConfig.Proxy.DelegateSocket != "" {
		logger.Info("Rewriting delegated to worker at %s (timeout %s)", AppConfig.Proxy.DelegateSocket, AppConfig.Proxy.DelegateTimeout)
	}
	if AppConfig.Proxy.MitmAllHosts {
		logger.Warn("Proxy: intercepting TLS for ALL hosts, not only those with interceptors.")
	}
	logger.Info("%d enablement rule(s) configured", len(AppConfig.Interceptors.Rules))

	logger.Debug("Final AppConfig Initialized: %+v", AppConfig)
	return nil
}
