package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"covtrace.dev/pkg/covtrace/internal/adapter"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "covtrace"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	outputFlagName      = "output"
	logFileFlagName     = "log-file"
	verboseFlagName     = "verbose"
	traceOutFlagName    = "trace-out"
	timeoutFlagName     = "timeout"
	formatFlagName      = "format"
	loadBaseFlagName    = "load-base"
	disassemblyFlagName = "disassembly"
	summaryFlagName     = "summary"
	workersFlagName     = "workers"
	intoFlagName        = "into"

	reportDisassemblyKey = "report.disassembly"
	reportSummaryKey     = "report.summary"
	reportWorkersKey     = "report.workers"
	traceFormatKey       = "trace.format"
	traceLoadBaseKey     = "trace.load_base"
	runTraceOutKey       = "run.trace_out"
	runTimeoutKey        = "run.timeout"
	mergeOutputKey       = "merge.output"

	defaultReportsDir        = "report"
	defaultReportDisassembly = true
	defaultReportSummary     = true
	defaultReportWorkers     = 4
	defaultTraceFormat       = "auto"
	defaultTraceLoadBase     = 0
	defaultRunTraceOut       = ""
	defaultRunTimeout        = time.Duration(0)
	defaultMergeOutput       = "merged.trace"

	envPrefix = "COVTRACE"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".covtrace.log"
	defaultLogLevel      = int(slog.LevelInfo)
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var globalLogger *slog.Logger

var configReadErr error

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.SetDefault(configVersionKey, currentConfigVersion)
	viper.SetDefault(outputFlagName, defaultReportsDir)
	viper.SetDefault(reportDisassemblyKey, defaultReportDisassembly)
	viper.SetDefault(reportSummaryKey, defaultReportSummary)
	viper.SetDefault(reportWorkersKey, defaultReportWorkers)
	viper.SetDefault(traceFormatKey, defaultTraceFormat)
	viper.SetDefault(traceLoadBaseKey, defaultTraceLoadBase)
	viper.SetDefault(runTraceOutKey, defaultRunTraceOut)
	viper.SetDefault(runTimeoutKey, defaultRunTimeout.String())
	viper.SetDefault(mergeOutputKey, defaultMergeOutput)

	// Logging defaults (used by config/env and as fallbacks for flags).
	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return
		}

		// reported once the logger is up
		configReadErr = err
	}
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Allow numeric slog levels as well (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger.
//
// By default it logs at Info; if verbose is true it logs at Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}

// reportOptions reads the report settings of the current command.
func reportOptions() adapter.ReportOptions {
	return adapter.ReportOptions{
		Disassembly: viper.GetBool(reportDisassemblyKey),
		Summary:     viper.GetBool(reportSummaryKey),
		Workers:     viper.GetInt(reportWorkersKey),
	}
}

// traceFormat reads and validates the configured trace format.
func traceFormat() (adapter.TraceFormat, error) {
	return adapter.ParseTraceFormat(viper.GetString(traceFormatKey))
}

// parseLoadBase accepts decimal, 0x hex and 0o octal load addresses.
func parseLoadBase(value string) (uint64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}

	base, err := strconv.ParseUint(value, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid load base %q: %w", value, err)
	}

	return base, nil
}
