package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codu-code/codu/internal/db"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Run schema migrations",
}

var dbUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE:  migrateCommand("up"),
}

var dbDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the latest migration",
	RunE:  migrateCommand("down"),
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	RunE:  migrateCommand("status"),
}

func migrateCommand(command string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		conn, err := db.Connect(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer conn.Close()

		if err := db.Migrate(conn, cfg.Database.Driver, command); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: ok\n", command)
		return nil
	}
}
