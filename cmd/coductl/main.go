// Command coductl is the operator tool for a Codú deployment: schema
// migrations, markdown imports, config generation and user moderation.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/codu-code/codu/internal/config"
	"github.com/codu-code/codu/internal/db"
	"github.com/codu-code/codu/internal/logger"
	"github.com/codu-code/codu/internal/repository"
)

var (
	configPath string
	dsn        string
	verbose    bool

	cfg *config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "coductl",
	Short: "Operate a Codú deployment",
	Long: `coductl manages the database and users behind a Codú server.

It reads the same config.yaml and .env as the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if dsn != "" {
			loaded.Database.DSN = dsn
		}
		cfg = loaded

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		log = logger.NewWithWriter(cmd.ErrOrStderr(), level, cfg.Logging.Format)
		config.SetLogger(log)
		db.SetLogger(log)
		repository.SetLogger(log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Database DSN (overrides the config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	dbCmd.AddCommand(dbUpCmd, dbDownCmd, dbStatusCmd)
	configCmd.AddCommand(configGenerateCmd)
	userCmd.AddCommand(userCreateCmd, userBanCmd, userUnbanCmd, userLogoutCmd)

	rootCmd.AddCommand(dbCmd, importCmd, configCmd, userCmd)
}

// openRepos opens and migrates the configured database.
func openRepos() (db.DB, *repository.Repositories, error) {
	d, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	if err := d.InitDB(); err != nil {
		return nil, nil, fmt.Errorf("init database: %w", err)
	}
	return d, repository.New(d, nil), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
