package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lewtec/demarca/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
	Long: `The schema is brought up to date automatically whenever the database is
opened. These commands operate on it directly.`,
}

func migrateCommand(use, short string, run func(cmd *cobra.Command, path string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return run(cmd, config.Database)
		},
	}
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(
		migrateCommand("up", "Apply every pending migration", func(cmd *cobra.Command, path string) error {
			db, err := repository.Open(path)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := repository.MigrateUp(db); err != nil {
				return err
			}
			return printVersion(cmd, path)
		}),
		migrateCommand("down", "Revert every migration, dropping all data", func(cmd *cobra.Command, path string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return fmt.Errorf("refusing to drop the schema of %s without --yes", path)
			}
			db, err := repository.Open(path)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := repository.MigrateDown(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema dropped")
			return nil
		}),
		migrateCommand("version", "Print the schema version", printVersion),
	)
	migrateCmd.PersistentFlags().Bool("yes", false, "Confirm destructive migrations")
}

func printVersion(cmd *cobra.Command, path string) error {
	db, err := repository.Open(path)
	if err != nil {
		return err
	}
	defer db.Close()
	version, dirty, err := repository.MigrateVersion(db)
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "version %d (%s)\n", version, state)
	return nil
}
