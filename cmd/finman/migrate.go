package main

import (
	"fmt"

	"finman/pkg/logger"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the schema of the configured storage backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, appLogger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync()

			// opening a backend applies its migrations
			st, err := openStores(cmd.Context(), cfg, appLogger)
			if err != nil {
				return err
			}
			st.close()

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", cfg.Storage.Driver)
			return nil
		},
	}
}
