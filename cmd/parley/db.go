package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/westrik/parley/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Storage management commands",
	}

	cmd.AddCommand(newDBInitCmd())
	return cmd
}

func newDBInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the snapshot storage schema",
		Long:  "Connects to the configured storage backend and migrates all tables.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "parley.yaml", "path to Parley config file")
	return cmd
}

func runDBInit(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfigOrDefault(configPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Using %s storage (%s)\n", cfg.Storage.Backend, cfg.Storage.DSN)

	gormDB, err := db.Connect(cfg.Storage.Backend, cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("connect to %s storage: %w", cfg.Storage.Backend, err)
	}

	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables\n", len(db.AllModels()))

	fmt.Fprintln(out, "\nParley storage initialized successfully.")
	return nil
}
