// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

package main

import (
	"fmt"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/pnptv/hubauth/internal/config"
	"github.com/pnptv/hubauth/internal/store"
)

// newMigrateCmd creates the migrate subcommand and its actions.
func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back, and inspect schema migrations for the hubauth database.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE:  runMigrateUp,
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			RunE:  runMigrateDown,
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			RunE:  runMigrateStatus,
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Force the schema version after a failed migration",
			Args:  cobra.ExactArgs(1),
			RunE:  runMigrateForce,
		},
	)

	return cmd
}

// openMigrator resolves the database URL through the normal config layers
// and returns a ready migrator.
func openMigrator() (*store.Migrator, error) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return nil, err
	}
	return store.NewMigrator(cfg.Database.URL)
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	migrator, err := openMigrator()
	if err != nil {
		return err
	}
	defer migrator.Close() //nolint:errcheck // Best effort on command exit

	pending, err := migrator.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		cmd.Println("No pending migrations")
		return nil
	}

	cmd.Printf("Applying %d migration(s)...\n", len(pending))
	if err := migrator.Up(); err != nil {
		return err
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	migrator, err := openMigrator()
	if err != nil {
		return err
	}
	defer migrator.Close() //nolint:errcheck // Best effort on command exit

	if err := migrator.Steps(-1); err != nil {
		return err
	}
	cmd.Println("Rolled back one migration")
	return nil
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	migrator, err := openMigrator()
	if err != nil {
		return err
	}
	defer migrator.Close() //nolint:errcheck // Best effort on command exit

	version, dirty, err := migrator.Version()
	if err != nil {
		return err
	}
	if version == 0 {
		cmd.Println("Schema version: none")
	} else {
		cmd.Printf("Schema version: %d", version)
		if name, nameErr := store.MigrationName(version); nameErr == nil && name != "" {
			cmd.Printf(" (%s)", name)
		}
		if dirty {
			cmd.Print(" DIRTY")
		}
		cmd.Println()
	}

	applied, err := migrator.AppliedMigrations()
	if err != nil {
		return err
	}
	pending, err := migrator.PendingMigrations()
	if err != nil {
		return err
	}

	printVersions := func(label string, versions []uint) {
		cmd.Printf("%s: %d\n", label, len(versions))
		for _, v := range versions {
			name, nameErr := store.MigrationName(v)
			if nameErr != nil || name == "" {
				name = fmt.Sprintf("%06d", v)
			}
			cmd.Printf("  %s\n", name)
		}
	}
	printVersions("Applied", applied)
	printVersions("Pending", pending)
	return nil
}

func runMigrateForce(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return oops.Code("INVALID_VERSION").With("version", args[0]).Wrap(err)
	}

	migrator, err := openMigrator()
	if err != nil {
		return err
	}
	defer migrator.Close() //nolint:errcheck // Best effort on command exit

	if err := migrator.Force(version); err != nil {
		return err
	}
	cmd.Printf("Schema version forced to %d\n", version)
	return nil
}
