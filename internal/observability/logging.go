// Package observability provides structured logging and Prometheus metrics
// for the configuration engine and synchronizer.
package observability

import (
	"go.uber.org/zap"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string            `json:"level"`
	Format      string            `json:"format"` // "json" or "console"
	OutputPath  string            `json:"output_path"`
	Fields      map[string]string `json:"fields"`
	Development bool              `json:"development"`
}

// NewLogger builds a zap logger from LogConfig.
func NewLogger(config LogConfig) (*zap.Logger, error) {
	var zapConfig zap.Config
	if config.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(config.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	if config.Format == "console" {
		zapConfig.Encoding = "console"
	} else {
		zapConfig.Encoding = "json"
	}
	if config.OutputPath != "" {
		zapConfig.OutputPaths = []string{config.OutputPath}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	fields := make([]zap.Field, 0, len(config.Fields))
	for k, v := range config.Fields {
		fields = append(fields, zap.String(k, v))
	}
	return logger.With(fields...), nil
}

// NewDefaultLogger creates a production JSON logger with sensible defaults.
func NewDefaultLogger() *zap.Logger {
	logger, err := NewLogger(LogConfig{
		Level:  "info",
		Format: "json",
		Fields: map[string]string{"service": "buildcore"},
	})
	if err != nil {
		fallback, _ := zap.NewProduction()
		return fallback
	}
	return logger
}
