package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	logger  = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	logFile *os.File
	mu      sync.Mutex
	isSetup bool
)

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// SetupLogger routes log output to the given file as JSON lines. An empty path
// keeps the console writer. Debug output is only emitted when debug is set.
func SetupLogger(logFilePath string, debug bool) error {
	mu.Lock()
	defer mu.Unlock()

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Check if logger is already set up
	if isSetup || logFilePath == "" {
		return nil
	}

	var err error
	logFile, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logger = zerolog.New(logFile).With().Timestamp().Logger()
	logger.Info().Msg("promptarena log started")

	isSetup = true
	return nil
}

// SetOutput replaces the log destination. Used by tests and the CLI.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = zerolog.New(w).With().Timestamp().Logger()
}

// CloseLogger closes the log file
func CloseLogger() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logger.Info().Msg("promptarena log closed")
		logFile.Close()
		logFile = nil
		isSetup = false
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}
}

// Logger returns the current logger for callers that want structured fields.
func Logger() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// LogInfo logs an information message
func LogInfo(format string, args ...interface{}) {
	l := Logger()
	l.Info().Msgf(format, args...)
}

// DebugLog logs a message if debug mode is enabled
func DebugLog(format string, args ...interface{}) {
	l := Logger()
	l.Debug().Msgf(format, args...)
}

// LogError logs an error message
func LogError(format string, args ...interface{}) {
	l := Logger()
	l.Error().Msgf(format, args...)
}

// LogWarning logs a warning message
func LogWarning(format string, args ...interface{}) {
	l := Logger()
	l.Warn().Msgf(format, args...)
}

// LogImageScored logs the outcome of scoring one image
func LogImageScored(path string, loss float64, err error) {
	l := Logger()
	if err != nil {
		l.Warn().Str("path", path).Err(err).Msg("FAILED")
		return
	}
	l.Debug().Str("path", path).Float64("loss", loss).Msg("SCORED")
}
