package main

import (
	"fmt"

	"github.com/kursadbilgin/notify-relay/internal/infra/postgresql/migrations"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations, including the capture trigger",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.openPostgres(); err != nil {
				return err
			}
			if err := migrations.Migrate(rt.db); err != nil {
				return fmt.Errorf("database migrations failed: %w", err)
			}

			rt.logger.Info("database migrations applied")
			return nil
		},
	}
}
