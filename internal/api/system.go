/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/invernadero/internal/logbuffer"
)

func (a *API) handleSystemLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		Greenhouse: q.Get("greenhouse"),
		RunID:      q.Get("run_id"),
		Search:     q.Get("search"),
		Limit:      500,
		Descending: q.Get("order") != "asc",
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit")
			return
		}
		params.Limit = n
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		params.Since = since
	}

	entries := a.opts.LogBuffer.Query(params)
	if entries == nil {
		entries = []logbuffer.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) handleSystemLogStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.opts.LogBuffer.Stats())
}
