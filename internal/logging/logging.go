package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"gomodmail/internal/config"
)

var logger = logrus.New()

// Initialize applies the level, format and output of cfg to the shared logger.
func Initialize(cfg config.LoggingConfig) error {
	level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch cfg.OutputPath {
	case "", "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.OutputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", cfg.OutputPath, err)
		}
		logger.SetOutput(f)
	}

	return nil
}

// Get returns the underlying logrus logger
func Get() *logrus.Logger {
	return logger
}
