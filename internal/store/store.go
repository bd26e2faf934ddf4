/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store persists uploaded greenhouse documents and simulation runs.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/invernadero/internal/models"
	"github.com/friendsincode/invernadero/internal/simulation"
)

// ErrNotFound is returned when a greenhouse or run does not exist.
var ErrNotFound = errors.New("not found")

// Store is the gorm backed repository.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New creates a store on an already migrated database.
func New(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// SaveUpload stores every greenhouse of one document under a new upload and
// returns the upload. IDs are assigned on the passed greenhouses.
func (s *Store) SaveUpload(ctx context.Context, filename string, greenhouses []*models.Greenhouse) (*models.Upload, error) {
	now := time.Now().UTC()
	upload := models.Upload{
		ID:          uuid.NewString(),
		Filename:    filename,
		Greenhouses: len(greenhouses),
		CreatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&upload).Error; err != nil {
			return fmt.Errorf("create upload: %w", err)
		}
		for _, g := range greenhouses {
			assignIDs(g, upload.ID, now)
			if err := tx.Create(g).Error; err != nil {
				return fmt.Errorf("create greenhouse %q: %w", g.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("upload_id", upload.ID).
		Str("filename", filename).
		Int("greenhouses", len(greenhouses)).
		Msg("stored upload")
	return &upload, nil
}

func assignIDs(g *models.Greenhouse, uploadID string, now time.Time) {
	g.ID = uuid.NewString()
	g.UploadID = uploadID
	g.CreatedAt = now
	g.UpdatedAt = now
	for i := range g.Plants {
		g.Plants[i].ID = uuid.NewString()
		g.Plants[i].GreenhouseID = g.ID
	}
	for i := range g.Drones {
		g.Drones[i].ID = uuid.NewString()
		g.Drones[i].GreenhouseID = g.ID
	}
	for i := range g.Plans {
		g.Plans[i].ID = uuid.NewString()
		g.Plans[i].GreenhouseID = g.ID
	}
}

// LatestUpload returns the most recent upload.
func (s *Store) LatestUpload(ctx context.Context) (*models.Upload, error) {
	var upload models.Upload
	err := s.db.WithContext(ctx).Order("created_at DESC").First(&upload).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query latest upload: %w", err)
	}
	return &upload, nil
}

// ListGreenhouses returns the greenhouses of the latest upload with their
// children loaded. An empty store yields an empty list.
func (s *Store) ListGreenhouses(ctx context.Context) ([]models.Greenhouse, error) {
	upload, err := s.LatestUpload(ctx)
	if errors.Is(err, ErrNotFound) {
		return []models.Greenhouse{}, nil
	}
	if err != nil {
		return nil, err
	}

	var out []models.Greenhouse
	err = s.withChildren(ctx).
		Where("upload_id = ?", upload.ID).
		Order("name ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list greenhouses: %w", err)
	}
	return out, nil
}

// GetGreenhouse returns the most recently uploaded greenhouse with name.
// Each call returns a fresh copy, so callers may run simulations on it.
func (s *Store) GetGreenhouse(ctx context.Context, name string) (*models.Greenhouse, error) {
	var g models.Greenhouse
	err := s.withChildren(ctx).
		Where("name = ?", name).
		Order("created_at DESC").
		First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query greenhouse %q: %w", name, err)
	}
	return &g, nil
}

func (s *Store) withChildren(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Plants", func(db *gorm.DB) *gorm.DB { return db.Order("row_no ASC, slot_no ASC") }).
		Preload("Drones", func(db *gorm.DB) *gorm.DB { return db.Order("sequence ASC") }).
		Preload("Plans", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") })
}

// SaveRun persists a computed result for g.
func (s *Store) SaveRun(ctx context.Context, g *models.Greenhouse, res *simulation.Result) (*models.SimulationRun, error) {
	payload, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}

	run := models.SimulationRun{
		ID:             uuid.NewString(),
		UploadID:       g.UploadID,
		GreenhouseID:   g.ID,
		GreenhouseName: res.GreenhouseName,
		PlanName:       res.PlanName,
		Makespan:       res.Makespan,
		TotalLiters:    res.TotalLiters,
		TotalGrams:     res.TotalGrams,
		Skipped:        res.Skipped,
		Result:         payload,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return &run, nil
}

// SetArchiveKey records where the salida document of a run was archived.
func (s *Store) SetArchiveKey(ctx context.Context, runID, key string) error {
	res := s.db.WithContext(ctx).
		Model(&models.SimulationRun{}).
		Where("id = ?", runID).
		Update("archive_key", key)
	if res.Error != nil {
		return fmt.Errorf("update archive key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun returns a stored run.
func (s *Store) GetRun(ctx context.Context, id string) (*models.SimulationRun, error) {
	var run models.SimulationRun
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	return &run, nil
}

// ListRuns returns runs newest first, optionally filtered by greenhouse
// name. A non-positive limit defaults to 50.
func (s *Store) ListRuns(ctx context.Context, greenhouse string, limit int) ([]models.SimulationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).
		Omit("result").
		Order("created_at DESC").
		Limit(limit)
	if greenhouse != "" {
		q = q.Where("greenhouse_name = ?", greenhouse)
	}

	var runs []models.SimulationRun
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// DecodeResult restores the simulation result stored on a run.
func DecodeResult(run *models.SimulationRun) (*simulation.Result, error) {
	var res simulation.Result
	if err := json.Unmarshal(run.Result, &res); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", run.ID, err)
	}
	return &res, nil
}
