package main

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/authcore/internal/config"
	"github.com/MrEthical07/authcore/store/pgstore"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the PostgreSQL schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Storage.Driver != config.DriverPostgres {
			return errors.New("migrate requires storage.driver=postgres")
		}

		store, err := pgstore.Open(cmd.Context(), cfg.Storage.DSN)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}
