package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu sync.RWMutex

	appLogger   = zap.NewNop().Sugar()
	proxyLogger = zap.NewNop().Sugar()

	logLevel     string
	appLogFile   *os.File
	proxyLogFile *os.File
	initialized  bool
)

// parseLevel maps the config level names (DEBUG, INFO, WARN, ERROR) to zap levels.
func parseLevel(level string) (zapcore.Level, string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel, "DEBUG"
	case "WARN", "WARNING":
		return zapcore.WarnLevel, "WARN"
	case "ERROR":
		return zapcore.ErrorLevel, "ERROR"
	default:
		return zapcore.InfoLevel, "INFO"
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
}

// newLogger builds a logger writing every entry at or above level to file
// (when available) and errors to stderr.
func newLogger(name string, file *os.File, level zapcore.Level) *zap.SugaredLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	stderrCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		zap.LevelEnablerFunc(func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel }),
	)
	cores := []zapcore.Core{stderrCore}
	if file != nil {
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)).Named(name).Sugar()
}

// InitGlobalLoggers (re)opens the app and proxy log files. A log file that
// cannot be opened is reported on stderr and its entries are dropped; errors
// still reach stderr.
func InitGlobalLoggers(appLogPath, proxyLogPath, level string) error {
	zapLevel, levelName := parseLevel(level)

	mu.Lock()
	defer mu.Unlock()

	if initialized && appLogFile != nil && proxyLogFile != nil && levelName == logLevel {
		return nil
	}
	closeFilesLocked()
	logLevel = levelName

	var err error
	actualAppLogPath := appLogPath
	appLogFile, err = openLogFile(appLogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to open app log file %s: %v. App logs will be discarded.\n", appLogPath, err)
		appLogFile = nil
		actualAppLogPath = "(discarded)"
	}
	actualProxyLogPath := proxyLogPath
	proxyLogFile, err = openLogFile(proxyLogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: failed to open proxy log file %s: %v. Proxy logs will be discarded.\n", proxyLogPath, err)
		proxyLogFile = nil
		actualProxyLogPath = "(discarded)"
	}

	appLogger = newLogger("app", appLogFile, zapLevel)
	proxyLogger = newLogger("proxy", proxyLogFile, zapLevel)

	if !initialized {
		appLogger.Infof("App logger initialized. Log level: %s. Output file: %s", logLevel, actualAppLogPath)
		proxyLogger.Infof("Proxy logger initialized. Log level: %s. Output file: %s", logLevel, actualProxyLogPath)
	}
	initialized = true
	return nil
}

func app() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return appLogger
}

func proxy() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return proxyLogger
}

func Info(format string, v ...interface{})  { app().Infof(format, v...) }
func Debug(format string, v ...interface{}) { app().Debugf(format, v...) }
func Warn(format string, v ...interface{})  { app().Warnf(format, v...) }
func Error(format string, v ...interface{}) { app().Errorf(format, v...) }

// Fatal logs and exits. It always reaches stderr, even before initialisation.
func Fatal(format string, v ...interface{}) {
	message := fmt.Sprintf(format, v...)
	fmt.Fprintln(os.Stderr, "FATAL: "+message)
	app().Error(message)
	CloseLogFiles()
	os.Exit(1)
}

func ProxyInfo(format string, v ...interface{})  { proxy().Infof(format, v...) }
func ProxyDebug(format string, v ...interface{}) { proxy().Debugf(format, v...) }
func ProxyWarn(format string, v ...interface{})  { proxy().Warnf(format, v...) }
func ProxyError(format string, v ...interface{}) { proxy().Errorf(format, v...) }

func closeFilesLocked() {
	_ = appLogger.Sync()
	_ = proxyLogger.Sync()
	if appLogFile != nil {
		appLogFile.Close()
		appLogFile = nil
	}
	if proxyLogFile != nil {
		proxyLogFile.Close()
		proxyLogFile = nil
	}
}

// CloseLogFiles flushes and closes both log files. Loggers fall back to no-ops
// until InitGlobalLoggers is called again.
func CloseLogFiles() {
	mu.Lock()
	defer mu.Unlock()
	if appLogFile != nil {
		appLogger.Info("Closing app log file.")
	}
	if proxyLogFile != nil {
		proxyLogger.Info("Closing proxy log file.")
	}
	closeFilesLocked()
	appLogger = zap.NewNop().Sugar()
	proxyLogger = zap.NewNop().Sugar()
	initialized = false
}
