package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alextreichler/shopbot/internal/config"
	"github.com/alextreichler/shopbot/internal/store"
	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:   "shopbot-cli",
		Short: "Maintenance commands for the shop bot database",
		Long: `shopbot-cli works directly on the shop database. It reads the same
configuration as the bot (DB_PATH and friends) and never talks to Discord.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("SHOPBOT_CONFIG"), "optional config file (.env, .yaml or .json)")
}

// Execute runs the root command
func Execute() error {
	rootCmd.AddCommand(addUserCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(setLinkCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// openStore loads the config and opens a migrated store.
func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	db, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	// Ensure tables exist if running cli before the bot
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
