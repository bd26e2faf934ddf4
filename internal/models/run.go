/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// SimulationRun persists one computed schedule. Result holds the JSON
// encoded simulation result so runs can be re-rendered without recomputing.
type SimulationRun struct {
	ID             string `gorm:"size:36;primaryKey"`
	UploadID       string `gorm:"size:36;index"`
	GreenhouseID   string `gorm:"size:36;index"`
	GreenhouseName string `gorm:"index"`
	PlanName       string
	Makespan       int
	TotalLiters    int
	TotalGrams     int
	Skipped        int
	Result         []byte
	ArchiveKey     string
	CreatedAt      time.Time
}

// Upload records one loaded greenhouse document.
type Upload struct {
	ID          string `gorm:"size:36;primaryKey"`
	Filename    string
	Greenhouses int
	CreatedAt   time.Time
}
