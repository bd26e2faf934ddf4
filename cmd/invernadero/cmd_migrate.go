/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/invernadero/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long:  "Create or update the greenhouse, upload and simulation run tables for the configured backend.",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() {
		if err := db.Close(database); err != nil {
			logger.Warn().Err(err).Msg("close database")
		}
	}()

	if err := db.Migrate(database); err != nil {
		return err
	}
	logger.Info().Str("backend", string(cfg.DBBackend)).Msg("migrations applied")
	return nil
}
