/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/invernadero/internal/models"
)

// Models lists every persisted type in dependency order.
func Models() []any {
	return []any{
		&models.Upload{},
		&models.Greenhouse{},
		&models.Plant{},
		&models.Drone{},
		&models.Plan{},
		&models.SimulationRun{},
	}
}

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
