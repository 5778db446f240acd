package database

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies the job (000001) and process (000002) store
// schemas this service's SQLStore implementations depend on (spec.md
// §4.6/§4.5's job/process stores). Supports both PostgreSQL and SQLite
// connection strings.
func RunMigrations(connString string, logger *zap.Logger) error {
	logger = logger.With(zap.String("component", "migrations"))
	logger.Info("applying database migrations")

	m, err := newMigrate(connString)
	if err != nil {
		return err
	}
	defer m.Close()

	// Get current version
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("job/process store schema is in dirty state at version %d", version)
	}

	logger.Info("current migration version", zap.Uint("version", version))

	// Run migrations
	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			logger.Info("no pending migrations")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get new version
	newVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("failed to get new migration version: %w", err)
	}

	logger.Info("migrations applied successfully", zap.Uint("new_version", newVersion))
	return nil
}

// SchemaStatus is the job/process store schema's current migration state,
// read without applying any pending migration — used by the `validate-config`
// CLI command (cmd/ems-worker) so an operator can confirm a deployment's
// schema is current before running `serve`.
type SchemaStatus struct {
	Version uint
	Dirty   bool
	Pending bool
}

// Status reports connString's current migration version against the
// embedded job/process store migrations, without applying anything.
func Status(connString string) (SchemaStatus, error) {
	m, err := newMigrate(connString)
	if err != nil {
		return SchemaStatus{}, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err == migrate.ErrNilVersion {
		return SchemaStatus{Pending: true}, nil
	}
	if err != nil {
		return SchemaStatus{}, fmt.Errorf("failed to get current migration version: %w", err)
	}

	latest, err := latestMigrationVersion()
	if err != nil {
		return SchemaStatus{}, err
	}

	return SchemaStatus{Version: version, Dirty: dirty, Pending: version < latest}, nil
}

func newMigrate(connString string) (*migrate.Migrate, error) {
	// Create migration source from embedded files
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create migrate instance
	// The connection string format determines which driver is used:
	// - postgres://... uses pgx/v5 driver
	// - sqlite:... or file:... uses sqlite3 driver
	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

func latestMigrationVersion() (uint, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return 0, fmt.Errorf("reading embedded migrations: %w", err)
	}
	var latest uint
	for _, entry := range entries {
		var version uint
		if _, err := fmt.Sscanf(entry.Name(), "%06d_", &version); err == nil && version > latest {
			latest = version
		}
	}
	return latest, nil
}
