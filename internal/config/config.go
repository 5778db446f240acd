package config

import "fmt"

// Config holds all application configuration.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Log        LogConfig        `mapstructure:"log"`
	WPS        WPSConfig        `mapstructure:"wps"`
	Container  ContainerConfig  `mapstructure:"container"`
	Processing ProcessingConfig `mapstructure:"configuration"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database config: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	if err := c.WPS.Validate(); err != nil {
		return fmt.Errorf("wps config: %w", err)
	}
	if err := c.Container.Validate(); err != nil {
		return fmt.Errorf("container config: %w", err)
	}
	if err := c.Processing.Validate(); err != nil {
		return fmt.Errorf("configuration mode: %w", err)
	}
	return nil
}
