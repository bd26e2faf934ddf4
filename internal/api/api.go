/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/invernadero/internal/auth"
	"github.com/friendsincode/invernadero/internal/graph"
	"github.com/friendsincode/invernadero/internal/loader"
	"github.com/friendsincode/invernadero/internal/logbuffer"
	"github.com/friendsincode/invernadero/internal/service"
	"github.com/friendsincode/invernadero/internal/simulation"
)

// Options tune the HTTP surface.
type Options struct {
	JWTSecret      []byte // empty disables bearer auth on mutating routes
	MaxUploadBytes int64
	GraphvizBin    string
	LogBuffer      *logbuffer.Buffer // nil disables the system log routes
}

// API exposes HTTP handlers.
type API struct {
	svc      *service.Service
	renderer *graph.Renderer
	opts     Options
	logger   zerolog.Logger
}

// New creates the API router wrapper.
func New(svc *service.Service, opts Options, logger zerolog.Logger) *API {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.GraphvizBin == "" {
		opts.GraphvizBin = "dot"
	}
	return &API{
		svc:      svc,
		renderer: graph.NewRenderer(graph.DefaultRendererConfig(opts.GraphvizBin), logger),
		opts:     opts,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts API routes on provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Route("/greenhouses", func(r chi.Router) {
			r.Get("/", a.handleGreenhousesList)
			r.With(auth.RequireBearer(a.opts.JWTSecret)).Post("/upload", a.handleUpload)
			r.Get("/{name}", a.handleGreenhouseGet)
			r.With(auth.RequireBearer(a.opts.JWTSecret)).Post("/{name}/plans/{plan}/simulate", a.handleSimulate)
		})

		if a.opts.LogBuffer != nil {
			r.Route("/system", func(r chi.Router) {
				r.Use(auth.RequireBearer(a.opts.JWTSecret))
				r.Get("/logs", a.handleSystemLogs)
				r.Get("/logs/stats", a.handleSystemLogStats)
			})
		}

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", a.handleRunsList)
			r.Route("/{runID}", func(r chi.Router) {
				r.Get("/", a.handleRunGet)
				r.Get("/salida.xml", a.handleRunSalida)
				r.Get("/graph", a.handleRunGraph)
			})
		})
	})
}

// handleHealth also reports the Graphviz breaker, which is "open" while
// image rendering is being short-circuited to DOT.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "ok",
		"graph_renderer": a.renderer.State().String(),
	})
}

// writeServiceError maps domain errors onto HTTP statuses. Anything it does
// not recognise is logged and reported as an internal error.
func (a *API) writeServiceError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, service.ErrGreenhouseNotFound):
		writeError(w, http.StatusNotFound, "greenhouse_not_found")
	case errors.Is(err, simulation.ErrPlanNotFound):
		writeError(w, http.StatusNotFound, "plan_not_found")
	case errors.Is(err, service.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "run_not_found")
	case errors.Is(err, loader.ErrUnsupportedFormat):
		writeError(w, http.StatusUnsupportedMediaType, "unsupported_format")
	case errors.Is(err, loader.ErrInvalidDocument):
		writeError(w, http.StatusBadRequest, "invalid_document")
	default:
		a.logger.Error().Err(err).Msg(msg)
		writeError(w, http.StatusInternalServerError, "internal_error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
