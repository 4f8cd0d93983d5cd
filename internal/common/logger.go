package common

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	arborcommon "github.com/ternarybob/arbor/common"
	"github.com/ternarybob/arbor/models"
)

var (
	globalLogger arbor.ILogger
	loggerMutex  sync.RWMutex
)

// GetLogger returns the global logger instance
// If InitLogger() hasn't been called yet, returns a fallback console logger
func GetLogger() arbor.ILogger {
	loggerMutex.RLock()
	if globalLogger != nil {
		loggerMutex.RUnlock()
		return globalLogger
	}
	loggerMutex.RUnlock()

	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	// Double-check after acquiring write lock
	if globalLogger == nil {
		// WARNING: Using fallback logger - InitLogger() should be called during startup
		globalLogger = arbor.NewLogger().WithConsoleWriter(createWriterConfig(nil, models.LogWriterTypeConsole, ""))
		// Log warning about initialization order issue
		globalLogger.Warn().Msg("Using fallback logger - InitLogger() should be called during startup")
	}
	return globalLogger
}

// InitLogger stores the provided logger as the global singleton instance
func InitLogger(logger arbor.ILogger) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	globalLogger = logger
}

// SetupLogger configures and initializes the global logger based on configuration
func SetupLogger(config *Config) arbor.ILogger {
	logger := arbor.NewLogger()

	// Get executable path for log directory
	execPath, err := os.Executable()
	if err != nil {
		// Add console writer first, then log the warning
		logger = logger.WithConsoleWriter(createWriterConfig(config, models.LogWriterTypeConsole, ""))
		logger.Warn().Err(err).Msg("Failed to get executable path - using fallback console logging")
	} else {
		execDir := filepath.Dir(execPath)
		logsDir := filepath.Join(execDir, "logs")

		// Check if file output is enabled
		hasFileOutput := false
		hasStdoutOutput := false
		for _, output := range config.Logging.Output {
			if output == "file" {
				hasFileOutput = true
			}
			if output == "stdout" || output == "console" {
				hasStdoutOutput = true
			}
		}

		// Configure file logging if enabled
		if hasFileOutput {
			if err := os.MkdirAll(logsDir, 0755); err != nil {
				// Use console writer temporarily for this warning
				tempLogger := logger.WithConsoleWriter(createWriterConfig(config, models.LogWriterTypeConsole, ""))
				tempLogger.Warn().Err(err).Str("logs_dir", logsDir).Msg("Failed to create logs directory")
			} else {
				logFile := filepath.Join(logsDir, "dreamforge.log")
				logger = logger.WithFileWriter(createWriterConfig(config, models.LogWriterTypeFile, logFile))
			}
		}

		// Configure console logging if enabled
		if hasStdoutOutput {
			logger = logger.WithConsoleWriter(createWriterConfig(config, models.LogWriterTypeConsole, ""))
		}

		// Ensure at least one visible log writer is configured
		if !hasFileOutput && !hasStdoutOutput {
			logger = logger.WithConsoleWriter(createWriterConfig(config, models.LogWriterTypeConsole, ""))
			logger.Warn().
				Strs("configured_outputs", config.Logging.Output).
				Msg("No visible log outputs configured - falling back to console")
		}
	}

	// Always add the in-process memory writer (GET /v1/jobs/{id}/logs serves the events table, not this buffer)
	logger = logger.WithMemoryWriter(createWriterConfig(config, models.LogWriterTypeMemory, ""))

	// Set log level
	logger = logger.WithLevelFromString(config.Logging.Level)

	// Store logger in singleton for global access
	InitLogger(logger)

	return logger
}

// createWriterConfig creates a standard writer configuration with user preferences
func createWriterConfig(config *Config, writerType models.LogWriterType, filename string) models.WriterConfiguration {
	// Default time format if not specified (HH:MM:SS.mmm for alignment with SSE logs)
	timeFormat := "15:04:05.000"
	if config != nil && config.Logging.TimeFormat != "" {
		timeFormat = config.Logging.TimeFormat
	}

	return models.WriterConfiguration{
		Type:             writerType,
		FileName:         filename,
		TimeFormat:       timeFormat,
		DisableTimestamp: false,
		MaxSize:          100 * 1024 * 1024, // 100 MB (only used for file writer)
		MaxBackups:       3,                 // (only used for file writer)
	}
}

// Stop flushes any remaining context logs before application shutdown
// Safe to call multiple times (Arbor's Stop is idempotent)
func Stop() {
	arborcommon.Stop()
}

// JobLogger wraps arbor.ILogger with a job's correlation id, so every log
// line the executor emits while running a job's steps carries the job id
// regardless of which worker goroutine (or which step) produced it. These
// are process log lines; GET /v1/jobs/{id}/logs serves the job's persisted
// events, not these lines.
type JobLogger struct {
	logger arbor.ILogger
	jobID  string
}

// NewJobLogger binds base to jobID's correlation id.
func NewJobLogger(base arbor.ILogger, jobID string) *JobLogger {
	return &JobLogger{logger: base.WithCorrelationId(jobID), jobID: jobID}
}

func (jl *JobLogger) Info() arbor.ILogEvent  { return jl.logger.Info() }
func (jl *JobLogger) Warn() arbor.ILogEvent  { return jl.logger.Warn() }
func (jl *JobLogger) Error() arbor.ILogEvent { return jl.logger.Error() }
func (jl *JobLogger) Debug() arbor.ILogEvent { return jl.logger.Debug() }

// LogStepStart logs the start of a step with the fields the executor
// records identically on every step, so callers don't repeat them.
func (jl *JobLogger) LogStepStart(step string) {
	jl.Info().Str("job_id", jl.jobID).Str("step", step).Msg("step started")
}

// LogStepFinish logs a step's successful completion and its duration.
func (jl *JobLogger) LogStepFinish(step string, duration time.Duration) {
	jl.Info().Str("job_id", jl.jobID).Str("step", step).Float64("duration_sec", duration.Seconds()).Msg("step finished")
}

// LogStepError logs a step failure; the executor still records the
// failure on the Step/Job rows separately (see apperr and the repository),
// this is the log-stream side of the same event.
func (jl *JobLogger) LogStepError(step string, err error) {
	jl.Error().Str("job_id", jl.jobID).Str("step", step).Err(err).Msg("step failed")
}

// LogJobFinish logs a job reaching its terminal succeeded state.
func (jl *JobLogger) LogJobFinish() {
	jl.Info().Str("job_id", jl.jobID).Msg("job finished")
}
