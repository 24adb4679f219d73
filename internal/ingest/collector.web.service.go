// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package ingest

import (
	"encoding/json"
	"net/http"
	"time"

	"heatpilot/v2/internal/metrics"
)

// ServeHTTP exposes:
//   - GET /api/values              -> last poll result per register
//   - GET /api/history?id=<code>   -> last 24h of stored readings of a parameter
func (c *Collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/values":
		c.handleAPIValues(w, r)
	case "/api/history":
		c.handleAPIHistory(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (c *Collector) handleAPIValues(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c.LatestAll()); err != nil {
		c.log.Error("failed to encode latest values: %v", err)
	}
}

func (c *Collector) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "missing 'id' parameter", http.StatusBadRequest)
		return
	}
	now := c.now()
	samples, err := metrics.GetReadings(r.Context(), c.db, c.deviceID, id, now.Add(-24*time.Hour), now)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		c.log.Error("history for %s: %v", id, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(samples); err != nil {
		c.log.Error("failed to encode history for id %s: %v", id, err)
	}
}
