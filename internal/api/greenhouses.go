/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/invernadero/internal/auth"
	"github.com/friendsincode/invernadero/internal/models"
)

type plantResponse struct {
	Name   string `json:"name"`
	Row    int    `json:"row"`
	Slot   int    `json:"slot"`
	Liters int    `json:"liters"`
	Grams  int    `json:"grams"`
}

type droneResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Row  int    `json:"row"`
}

type planResponse struct {
	Name    string   `json:"name"`
	Entries []string `json:"entries"`
}

type greenhouseResponse struct {
	ID          string          `json:"id"`
	UploadID    string          `json:"upload_id"`
	Name        string          `json:"name"`
	Rows        int             `json:"rows"`
	SlotsPerRow int             `json:"slots_per_row"`
	Plants      []plantResponse `json:"plants,omitempty"`
	Drones      []droneResponse `json:"drones"`
	Plans       []planResponse  `json:"plans"`
	CreatedAt   time.Time       `json:"created_at"`
}

func toGreenhouseResponse(g *models.Greenhouse, withPlants bool) greenhouseResponse {
	resp := greenhouseResponse{
		ID:          g.ID,
		UploadID:    g.UploadID,
		Name:        g.Name,
		Rows:        g.Rows,
		SlotsPerRow: g.SlotsPerRow,
		Drones:      make([]droneResponse, 0, len(g.Drones)),
		Plans:       make([]planResponse, 0, len(g.Plans)),
		CreatedAt:   g.CreatedAt,
	}
	if withPlants {
		resp.Plants = make([]plantResponse, 0, len(g.Plants))
		for _, p := range g.Plants {
			resp.Plants = append(resp.Plants, plantResponse{Name: p.Name, Row: p.Row, Slot: p.Slot, Liters: p.Liters, Grams: p.Grams})
		}
	}
	for _, d := range g.Drones {
		resp.Drones = append(resp.Drones, droneResponse{ID: d.DroneID, Name: d.Name, Row: d.Row})
	}
	for i := range g.Plans {
		resp.Plans = append(resp.Plans, planResponse{Name: g.Plans[i].Name, Entries: g.Plans[i].Entries()})
	}
	return resp
}

func (a *API) handleGreenhousesList(w http.ResponseWriter, r *http.Request) {
	greenhouses, err := a.svc.Greenhouses(r.Context())
	if err != nil {
		a.writeServiceError(w, err, "list greenhouses failed")
		return
	}
	out := make([]greenhouseResponse, 0, len(greenhouses))
	for i := range greenhouses {
		out = append(out, toGreenhouseResponse(&greenhouses[i], false))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleGreenhouseGet(w http.ResponseWriter, r *http.Request) {
	g, err := a.svc.Greenhouse(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		a.writeServiceError(w, err, "get greenhouse failed")
		return
	}
	writeJSON(w, http.StatusOK, toGreenhouseResponse(g, true))
}

func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(a.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file_too_large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_multipart")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file_required")
		return
	}
	defer file.Close()

	out, err := a.svc.Upload(r.Context(), header.Filename, file)
	if err != nil {
		a.writeServiceError(w, err, "upload failed")
		return
	}

	logEvt := a.logger.Info().Str("upload_id", out.Upload.ID).Strs("greenhouses", out.Greenhouses)
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		logEvt = logEvt.Str("user_id", claims.UserID)
	}
	logEvt.Msg("greenhouse document uploaded")

	writeJSON(w, http.StatusCreated, map[string]any{
		"upload_id":   out.Upload.ID,
		"filename":    out.Upload.Filename,
		"greenhouses": out.Greenhouses,
	})
}

func (a *API) handleSimulate(w http.ResponseWriter, r *http.Request) {
	out, err := a.svc.Run(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "plan"))
	if err != nil {
		a.writeServiceError(w, err, "simulation failed")
		return
	}
	status := http.StatusCreated
	if out.Cached {
		status = http.StatusOK
	}
	writeJSON(w, status, toRunResponse(out.Run, out.Result, out.Cached))
}
