package config

import (
	"fmt"
	"time"
)

// HTTPConfig holds configuration for the OGC API - Processes / WPS HTTP
// listener.
type HTTPConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Validate validates the HTTP configuration.
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", h.Port)
	}
	if h.ReadTimeout <= 0 {
		return fmt.Errorf("http read_timeout must be positive")
	}
	if h.WriteTimeout <= 0 {
		return fmt.Errorf("http write_timeout must be positive")
	}
	return nil
}

// Addr returns the host:port listen address.
func (h *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}
