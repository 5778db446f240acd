package main

import (
	"github.com/spf13/cobra"

	"github.com/crim-ca/weaver-ems/internal/database"
)

// newMigrateCommand applies every pending golang-migrate migration against
// the configured database and exits, for use as a pre-deploy step ahead
// of `serve`.
func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return database.RunMigrations(cfg.Database.ConnString(), log)
		},
	}
}
