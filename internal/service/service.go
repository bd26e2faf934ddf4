/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package service coordinates uploads and simulation runs across the store,
// the result cache, the event bus and the salida archive.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/invernadero/internal/cache"
	"github.com/friendsincode/invernadero/internal/eventbus"
	"github.com/friendsincode/invernadero/internal/events"
	"github.com/friendsincode/invernadero/internal/loader"
	"github.com/friendsincode/invernadero/internal/models"
	"github.com/friendsincode/invernadero/internal/report"
	"github.com/friendsincode/invernadero/internal/simulation"
	"github.com/friendsincode/invernadero/internal/storage"
	"github.com/friendsincode/invernadero/internal/store"
	"github.com/friendsincode/invernadero/internal/telemetry"
)

var (
	// ErrGreenhouseNotFound is returned when no uploaded greenhouse has the
	// requested name.
	ErrGreenhouseNotFound = errors.New("greenhouse not found")
	// ErrRunNotFound is returned for unknown run ids.
	ErrRunNotFound = errors.New("run not found")
)

// Service is safe for concurrent use.
type Service struct {
	store   *store.Store
	engine  *simulation.Engine
	cache   *cache.Cache
	bus     eventbus.Bus
	archive storage.ObjectStore
	logger  zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Deps are the collaborators of a Service. Cache, Bus and Archive are
// optional.
type Deps struct {
	Store   *store.Store
	Engine  *simulation.Engine
	Cache   *cache.Cache
	Bus     eventbus.Bus
	Archive storage.ObjectStore
}

// New creates a service.
func New(deps Deps, logger zerolog.Logger) *Service {
	if deps.Engine == nil {
		deps.Engine = simulation.NewEngine(logger)
	}
	if deps.Cache == nil {
		deps.Cache = cache.Disabled(logger)
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.NewLocal()
	}
	return &Service{
		store:   deps.Store,
		engine:  deps.Engine,
		cache:   deps.Cache,
		bus:     deps.Bus,
		archive: deps.Archive,
		logger:  logger.With().Str("component", "service").Logger(),
		locks:   make(map[string]*sync.Mutex),
	}
}

// RunOutcome is a stored run with its decoded result.
type RunOutcome struct {
	Run    *models.SimulationRun
	Result *simulation.Result
	Cached bool
}

// UploadOutcome describes a stored document.
type UploadOutcome struct {
	Upload      *models.Upload
	Greenhouses []string
}

// lockFor serializes runs against one greenhouse name.
func (s *Service) lockFor(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

// Upload parses a greenhouse document and stores it as the latest upload.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (*UploadOutcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.Upload", attribute.String("filename", filename))
	defer span.End()

	format, err := loader.FormatFor(filename)
	if err != nil {
		telemetry.UploadsTotal.WithLabelValues("unknown", "rejected").Inc()
		return nil, err
	}
	greenhouses, err := loader.Load(format, r)
	if err != nil {
		telemetry.UploadsTotal.WithLabelValues(string(format), "rejected").Inc()
		telemetry.RecordError(span, err)
		return nil, err
	}

	names := make([]string, 0, len(greenhouses))
	for _, g := range greenhouses {
		names = append(names, g.Name)
	}
	superseded := s.supersededUploads(ctx, names)

	upload, err := s.store.SaveUpload(ctx, filename, greenhouses)
	if err != nil {
		telemetry.UploadsTotal.WithLabelValues(string(format), "error").Inc()
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.UploadsTotal.WithLabelValues(string(format), "ok").Inc()

	// Replaced greenhouses are never looked up under their old upload again.
	for name, uploadID := range superseded {
		if err := s.cache.InvalidateGreenhouse(ctx, uploadID, name); err != nil {
			s.logger.Warn().Err(err).Str("greenhouse", name).Str("upload_id", uploadID).Msg("failed to invalidate cached results")
		}
	}
	s.bus.Publish(events.EventGreenhousesLoaded, events.Payload{
		"upload_id":   upload.ID,
		"filename":    filename,
		"greenhouses": names,
	})
	return &UploadOutcome{Upload: upload, Greenhouses: names}, nil
}

// supersededUploads maps each name to the upload currently serving it.
// Names not stored yet are left out.
func (s *Service) supersededUploads(ctx context.Context, names []string) map[string]string {
	out := make(map[string]string, len(names))
	for _, name := range names {
		g, err := s.store.GetGreenhouse(ctx, name)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				s.logger.Debug().Err(err).Str("greenhouse", name).Msg("lookup of replaced greenhouse failed")
			}
			continue
		}
		out[name] = g.UploadID
	}
	return out
}

// Greenhouses lists the greenhouses of the latest upload.
func (s *Service) Greenhouses(ctx context.Context) ([]models.Greenhouse, error) {
	return s.store.ListGreenhouses(ctx)
}

// Greenhouse returns the latest greenhouse with name.
func (s *Service) Greenhouse(ctx context.Context, name string) (*models.Greenhouse, error) {
	g, err := s.store.GetGreenhouse(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrGreenhouseNotFound, name)
	}
	return g, err
}

// Run simulates plan on the latest greenhouse named greenhouse. Results are
// served from cache when the same upload was already simulated. Cache,
// event and archive failures are logged and never fail the run.
func (s *Service) Run(ctx context.Context, greenhouse, plan string) (*RunOutcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.Run",
		attribute.String("greenhouse", greenhouse),
		attribute.String("plan", plan),
	)
	defer span.End()

	g, err := s.Greenhouse(ctx, greenhouse)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if out, ok := s.cached(ctx, g.UploadID, greenhouse, plan); ok {
		span.SetAttributes(attribute.Bool("cached", true))
		return out, nil
	}

	lock := s.lockFor(greenhouse)
	lock.Lock()
	defer lock.Unlock()

	res, err := s.engine.Simulate(g, plan)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	run, err := s.store.SaveRun(ctx, g, res)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("run_id", run.ID), attribute.Int("makespan", res.Makespan))

	if err := s.cache.SetResult(ctx, g.UploadID, cache.Entry{RunID: run.ID, Result: res}); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to cache result")
	}

	s.bus.Publish(events.EventSimulationCompleted, events.Payload{
		"run_id":       run.ID,
		"upload_id":    g.UploadID,
		"greenhouse":   res.GreenhouseName,
		"plan":         res.PlanName,
		"makespan":     res.Makespan,
		"total_liters": res.TotalLiters,
		"total_grams":  res.TotalGrams,
	})

	s.archiveRun(ctx, run, res)
	return &RunOutcome{Run: run, Result: res}, nil
}

func (s *Service) cached(ctx context.Context, uploadID, greenhouse, plan string) (*RunOutcome, bool) {
	entry, ok := s.cache.GetResult(ctx, uploadID, greenhouse, plan)
	if !ok {
		return nil, false
	}
	run, err := s.store.GetRun(ctx, entry.RunID)
	if err != nil {
		s.logger.Debug().Err(err).Str("run_id", entry.RunID).Msg("cached run missing from store")
		return nil, false
	}
	return &RunOutcome{Run: run, Result: entry.Result, Cached: true}, true
}

// archiveKey places salida documents under the greenhouse name.
func archiveKey(run *models.SimulationRun) string {
	return url.PathEscape(run.GreenhouseName) + "/" + run.ID + ".xml"
}

func (s *Service) archiveRun(ctx context.Context, run *models.SimulationRun, res *simulation.Result) {
	if s.archive == nil {
		return
	}

	var buf bytes.Buffer
	if err := report.WriteXML(&buf, res); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to render salida for archive")
		return
	}
	key := archiveKey(run)
	if err := s.archive.Put(ctx, key, buf.Bytes()); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to archive salida")
		return
	}
	if err := s.store.SetArchiveKey(ctx, run.ID, key); err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to record archive key")
		return
	}
	run.ArchiveKey = key
	s.bus.Publish(events.EventRunArchived, events.Payload{"run_id": run.ID, "key": key})
}

// GetRun returns a stored run with its decoded result.
func (s *Service) GetRun(ctx context.Context, id string) (*RunOutcome, error) {
	run, err := s.store.GetRun(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	res, err := store.DecodeResult(run)
	if err != nil {
		return nil, err
	}
	return &RunOutcome{Run: run, Result: res}, nil
}

// ListRuns returns recent runs, newest first.
func (s *Service) ListRuns(ctx context.Context, greenhouse string, limit int) ([]models.SimulationRun, error) {
	return s.store.ListRuns(ctx, greenhouse, limit)
}

// Salida returns the salida document of a run, from the archive when it
// was archived and rendered from the stored result otherwise.
func (s *Service) Salida(ctx context.Context, id string) ([]byte, error) {
	out, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.archive != nil && out.Run.ArchiveKey != "" {
		data, err := s.archive.Get(ctx, out.Run.ArchiveKey)
		if err == nil {
			return data, nil
		}
		s.logger.Warn().Err(err).Str("run_id", id).Msg("archived salida unavailable, rendering")
	}

	var buf bytes.Buffer
	if err := report.WriteXML(&buf, out.Result); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
