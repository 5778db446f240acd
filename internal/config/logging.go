package config

import "fmt"

// LogConfig holds logging configuration for both this service's own
// ambient log lines and the per-request access log internal/logger's
// HTTPMiddleware writes for every OGC API - Processes and WPS-1 KVP
// request it serves.
type LogConfig struct {
	Level  string `mapstructure:"level" env:"LOG_LEVEL" default:"info"`
	Format string `mapstructure:"format" env:"LOG_FORMAT" default:"development"`

	// CorrelationHeader is the inbound header internal/logger.HTTPMiddleware
	// reads to seed a request's correlation_id (falling back to the
	// generated request ID when absent or unset here). Some ADES/EMS peers
	// forward their own correlation header instead of X-Correlation-ID.
	CorrelationHeader string `mapstructure:"correlation_header" env:"LOG_CORRELATION_HEADER" default:"X-Correlation-ID"`
}

// Validate validates logging configuration
func (l *LogConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", l.Level)
	}
	validFormats := map[string]bool{
		"development": true,
		"production":  true,
	}
	if !validFormats[l.Format] {
		return fmt.Errorf("invalid log format: %s (must be development or production)", l.Format)
	}
	if l.CorrelationHeader == "" {
		return fmt.Errorf("correlation header must not be empty")
	}
	return nil
}
