package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/tgplay/internal/config"
	"github.com/jfmyers9/tgplay/internal/store"
	"github.com/jfmyers9/tgplay/pkg/tgapi"
)

// loadConfig reads the config and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return cfg, nil
}

// setupLogger creates a logger with the specified configuration
func setupLogger(logFile, logLevel string) zerolog.Logger {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	// Set up output
	output := os.Stderr
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		} else {
			output = f
		}
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	// Use pretty console output if logging to stderr
	if output == os.Stderr {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return logger
}

// apiLogger routes backend client debug output into zerolog.
type apiLogger struct {
	logger zerolog.Logger
}

func (l apiLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func newAPIClient(cfg *config.Config, logger zerolog.Logger) (*tgapi.Client, error) {
	client, err := tgapi.NewClient(tgapi.Config{
		BaseURL:   cfg.APIBase,
		InitData:  cfg.InitData,
		UserAgent: "tgplay/" + version,
		Logger:    apiLogger{logger: logger.With().Str("component", "tgapi").Logger()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	return client, nil
}

func openLibrary(cfg *config.Config) (*store.Store, error) {
	lib, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open library: %w", err)
	}
	return lib, nil
}
