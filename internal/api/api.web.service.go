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

// Package api serves the JSON query surface of the control core.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"heatpilot/v2/internal/metrics"
	"heatpilot/v2/internal/model"
	"heatpilot/v2/internal/store"
	"heatpilot/v2/pkg/logger"

	"gorm.io/gorm"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

type Service struct {
	db  *gorm.DB
	now func() time.Time
	log *logger.Logger
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now, log: logger.New("API")}
}

// ServeHTTP exposes, relative to where the service is attached (/api):
//   - GET  /metrics?hours=1        -> snapshot of the active device
//   - GET  /cop?hours=24           -> COP timeseries
//   - GET  /decisions?limit=50     -> newest decisions first
//   - GET  /decisions/<id>         -> one decision with its evaluation
//   - GET  /evaluations?limit=50   -> newest evaluations first
//   - GET  /schedule               -> planned schedule from the current hour
//   - GET  /devices                -> all devices
//   - POST /devices/away           -> {"enabled": bool, "until": RFC3339 or null}
//   - POST /devices/comfort        -> {"min_indoor_temp", "target_indoor_temp_min", "target_indoor_temp_max"}
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/metrics":
		s.get(w, r, s.handleMetrics)
	case path == "/cop":
		s.get(w, r, s.handleCOP)
	case path == "/decisions":
		s.get(w, r, s.handleDecisions)
	case strings.HasPrefix(path, "/decisions/"):
		s.get(w, r, s.handleDecision)
	case path == "/evaluations":
		s.get(w, r, s.handleEvaluations)
	case path == "/schedule":
		s.get(w, r, s.handleSchedule)
	case path == "/devices":
		s.get(w, r, s.handleDevices)
	case path == "/devices/away":
		s.post(w, r, s.handleAway)
	case path == "/devices/comfort":
		s.post(w, r, s.handleComfort)
	default:
		http.NotFound(w, r)
	}
}

func (s *Service) get(w http.ResponseWriter, r *http.Request, h http.HandlerFunc) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h(w, r)
}

func (s *Service) post(w http.ResponseWriter, r *http.Request, h http.HandlerFunc) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h(w, r)
}

func (s *Service) handleMetrics(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.device(w, r)
	if !ok {
		return
	}
	hours := floatParam(r, "hours", 1)
	snap, err := metrics.CalculateMetricsAt(r.Context(), s.db, dev.ID, s.now(), hours)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, snap)
}

func (s *Service) handleCOP(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.device(w, r)
	if !ok {
		return
	}
	now := s.now()
	hours := floatParam(r, "hours", 24)
	start := now.Add(-time.Duration(hours * float64(time.Hour)))
	points, err := metrics.GetCOPTimeseries(r.Context(), s.db, dev.ID, start, now)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, points)
}

func (s *Service) handleDecisions(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.device(w, r)
	if !ok {
		return
	}
	decisions, err := store.ListDecisions(r.Context(), s.db, dev.ID, limitParam(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, decisions)
}

type decisionDetail struct {
	Decision   model.DecisionLog `json:"decision"`
	Evaluation *model.Evaluation `json:"evaluation"`
}

func (s *Service) handleDecision(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/decisions/")
	d, err := store.GetDecision(r.Context(), s.db, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	if d == nil {
		http.Error(w, "decision not found", http.StatusNotFound)
		return
	}
	e, err := store.GetEvaluation(r.Context(), s.db, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, decisionDetail{Decision: *d, Evaluation: e})
}

func (s *Service) handleEvaluations(w http.ResponseWriter, r *http.Request) {
	evals, err := store.ListEvaluations(r.Context(), s.db, limitParam(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, evals)
}

func (s *Service) handleSchedule(w http.ResponseWriter, r *http.Request) {
	dev, ok := s.device(w, r)
	if !ok {
		return
	}
	rows, err := store.ListSchedule(r.Context(), s.db, dev.ID, s.now().Truncate(time.Hour))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, rows)
}

func (s *Service) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := store.ListDevices(r.Context(), s.db)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, devices)
}

type awayRequest struct {
	Enabled bool       `json:"enabled"`
	Until   *time.Time `json:"until"`
}

func (s *Service) handleAway(w http.ResponseWriter, r *http.Request) {
	var req awayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	dev, ok := s.device(w, r)
	if !ok {
		return
	}
	var err error
	switch {
	case !req.Enabled:
		err = store.ClearAwayMode(r.Context(), s.db, dev.ID)
	case req.Until != nil && !req.Until.After(s.now()):
		http.Error(w, "'until' must be in the future", http.StatusBadRequest)
		return
	default:
		err = store.SetAwayMode(r.Context(), s.db, dev.ID, req.Until)
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	s.log.Info("away mode set to %v", req.Enabled)
	s.writeDevice(w, r, dev.ID)
}

type comfortRequest struct {
	MinIndoorTemp       float64 `json:"min_indoor_temp"`
	TargetIndoorTempMin float64 `json:"target_indoor_temp_min"`
	TargetIndoorTempMax float64 `json:"target_indoor_temp_max"`
}

func (s *Service) handleComfort(w http.ResponseWriter, r *http.Request) {
	var req comfortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.TargetIndoorTempMin > req.TargetIndoorTempMax || req.MinIndoorTemp > req.TargetIndoorTempMin {
		http.Error(w, "need min_indoor_temp <= target_indoor_temp_min <= target_indoor_temp_max", http.StatusBadRequest)
		return
	}
	dev, ok := s.device(w, r)
	if !ok {
		return
	}
	err := store.UpdateComfort(r.Context(), s.db, dev.ID, store.ComfortSettings{
		MinIndoorTemp:       req.MinIndoorTemp,
		TargetIndoorTempMin: req.TargetIndoorTempMin,
		TargetIndoorTempMax: req.TargetIndoorTempMax,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeDevice(w, r, dev.ID)
}

func (s *Service) writeDevice(w http.ResponseWriter, r *http.Request, id uint) {
	dev, err := store.GetDevice(r.Context(), s.db, id)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, dev)
}

func (s *Service) device(w http.ResponseWriter, r *http.Request) (*model.Device, bool) {
	dev, err := store.ActiveDevice(r.Context(), s.db)
	if err != nil {
		s.fail(w, err)
		return nil, false
	}
	return dev, true
}

func (s *Service) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNoDevice) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.log.Error("%v", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (s *Service) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response: %v", err)
	}
}

func floatParam(r *http.Request, name string, def float64) float64 {
	v, err := strconv.ParseFloat(r.URL.Query().Get(name), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultLimit
	}
	return min(n, maxLimit)
}
