/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/invernadero/internal/graph"
	"github.com/friendsincode/invernadero/internal/models"
	"github.com/friendsincode/invernadero/internal/simulation"
)

type runResponse struct {
	ID          string             `json:"id"`
	Greenhouse  string             `json:"greenhouse"`
	Plan        string             `json:"plan"`
	Makespan    int                `json:"makespan"`
	TotalLiters int                `json:"total_liters"`
	TotalGrams  int                `json:"total_grams"`
	Skipped     int                `json:"skipped"`
	ArchiveKey  string             `json:"archive_key,omitempty"`
	Cached      bool               `json:"cached,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	Result      *simulation.Result `json:"result,omitempty"`
}

func toRunResponse(run *models.SimulationRun, res *simulation.Result, cached bool) runResponse {
	return runResponse{
		ID:          run.ID,
		Greenhouse:  run.GreenhouseName,
		Plan:        run.PlanName,
		Makespan:    run.Makespan,
		TotalLiters: run.TotalLiters,
		TotalGrams:  run.TotalGrams,
		Skipped:     run.Skipped,
		ArchiveKey:  run.ArchiveKey,
		Cached:      cached,
		CreatedAt:   run.CreatedAt,
		Result:      res,
	}
}

func (a *API) handleRunsList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		limit = n
	}

	runs, err := a.svc.ListRuns(r.Context(), r.URL.Query().Get("greenhouse"), limit)
	if err != nil {
		a.writeServiceError(w, err, "list runs failed")
		return
	}
	out := make([]runResponse, 0, len(runs))
	for i := range runs {
		out = append(out, toRunResponse(&runs[i], nil, false))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleRunGet(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		a.writeServiceError(w, err, "get run failed")
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(out.Run, out.Result, false))
}

func (a *API) handleRunSalida(w http.ResponseWriter, r *http.Request) {
	data, err := a.svc.Salida(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		a.writeServiceError(w, err, "render salida failed")
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleRunGraph serves the run graph as DOT, or as an image rendered by
// Graphviz. When rendering fails the DOT source is served instead.
func (a *API) handleRunGraph(w http.ResponseWriter, r *http.Request) {
	until := 0
	if v := r.URL.Query().Get("t"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_t")
			return
		}
		until = n
	}
	format := r.URL.Query().Get("format")
	switch format {
	case "", "dot", "png", "svg":
	default:
		writeError(w, http.StatusBadRequest, "unsupported_format")
		return
	}

	runID := chi.URLParam(r, "runID")
	out, err := a.svc.GetRun(r.Context(), runID)
	if err != nil {
		a.writeServiceError(w, err, "get run failed")
		return
	}
	src := graph.Generate(out.Result, graph.Options{Until: until})

	if format == "png" || format == "svg" {
		img, err := a.renderer.Render(r.Context(), src, format)
		if err == nil {
			contentType := "image/png"
			if format == "svg" {
				contentType = "image/svg+xml"
			}
			w.Header().Set("Content-Type", contentType)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(img)
			return
		}
		a.logger.Warn().Err(err).Str("run_id", runID).Str("format", format).Msg("graph render failed, serving dot")
	}

	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(src)
}
