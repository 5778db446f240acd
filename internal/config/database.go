package config

import (
	"fmt"
	"time"
)

// DatabaseConfig holds database connection configuration. Provider selects
// between "postgres" (pgx/v5) and "sqlite" (modernc.org/sqlite) backed
// stores for the job and process registries.
type DatabaseConfig struct {
	Provider        string        `mapstructure:"provider"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	Path            string        `mapstructure:"path"`
	MaxConnections  int32         `mapstructure:"max_connections"`
	MinConnections  int32         `mapstructure:"min_connections"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// Validate validates the database configuration.
func (d *DatabaseConfig) Validate() error {
	switch d.Provider {
	case "postgres":
		if d.Port < 1 || d.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", d.Port)
		}
	case "sqlite":
		// Path defaults to a file under the working directory; no further
		// validation needed here, RunMigrations resolves it.
	default:
		return fmt.Errorf("unsupported database provider: %s (must be postgres or sqlite)", d.Provider)
	}
	if d.MaxConnections > 0 && d.MinConnections > d.MaxConnections {
		return fmt.Errorf("min_connections (%d) cannot exceed max_connections (%d)", d.MinConnections, d.MaxConnections)
	}
	return nil
}

// ConnString builds the connection string consumed by database.RunMigrations
// and the store constructors.
func (d *DatabaseConfig) ConnString() string {
	switch d.Provider {
	case "sqlite":
		if d.Path != "" {
			return "sqlite:" + d.Path
		}
		return "sqlite::memory:"
	default:
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
	}
}
