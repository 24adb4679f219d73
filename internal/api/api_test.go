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

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"heatpilot/v2/internal/metrics"
	"heatpilot/v2/internal/model"
	"heatpilot/v2/internal/store"
	"heatpilot/v2/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var now = time.Date(2025, 1, 10, 12, 30, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *gorm.DB, *model.Device) {
	t.Helper()
	db := storetest.TempDB(t)
	dev := storetest.SeedDevice(t, db)
	storetest.SeedParameters(t, db)
	s := NewService(db)
	s.now = func() time.Time { return now }
	return s, db, dev
}

func do(t *testing.T, s *Service, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestMetrics(t *testing.T) {
	s, db, dev := newService(t)
	storetest.AddReading(t, db, dev.ID, model.ParamIndoorTemp, now.Add(-10*time.Minute), 21.5)

	rec := do(t, s, http.MethodGet, "/metrics?hours=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decode[metrics.Snapshot](t, rec)
	require.NotNil(t, snap.AvgIndoorTemp)
	assert.Equal(t, 21.5, *snap.AvgIndoorTemp)
}

func TestCOP(t *testing.T) {
	s, db, dev := newService(t)
	ts := now.Add(-time.Hour)
	storetest.AddReading(t, db, dev.ID, model.ParamOutdoorTemp, ts, 0)
	storetest.AddReading(t, db, dev.ID, model.ParamSupplyTemp, ts, 35)
	storetest.AddReading(t, db, dev.ID, model.ParamReturnTemp, ts.Add(2*time.Minute), 31)

	rec := do(t, s, http.MethodGet, "/cop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	points := decode[[]metrics.COPPoint](t, rec)
	require.Len(t, points, 1)
	assert.Greater(t, points[0].COP, 1.0)
}

func TestDecisionsAndEvaluations(t *testing.T) {
	s, db, dev := newService(t)
	ctx := context.Background()
	d := &model.DecisionLog{DeviceID: dev.ID, Timestamp: now.Add(-time.Hour), Action: model.ActionHold}
	require.NoError(t, store.InsertDecision(ctx, db, d))
	require.NoError(t, store.UpsertEvaluation(ctx, db, &model.Evaluation{DecisionID: d.ID, Verdict: model.VerdictSuccess, EvaluatedAt: now}))

	rec := do(t, s, http.MethodGet, "/decisions?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]model.DecisionLog](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, d.ID, list[0].ID)

	rec = do(t, s, http.MethodGet, "/decisions/"+d.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[decisionDetail](t, rec)
	require.NotNil(t, detail.Evaluation)
	assert.Equal(t, model.VerdictSuccess, detail.Evaluation.Verdict)

	rec = do(t, s, http.MethodGet, "/decisions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/evaluations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Evaluation](t, rec), 1)
}

func TestSchedule(t *testing.T) {
	s, db, dev := newService(t)
	start := now.Truncate(time.Hour)
	require.NoError(t, store.ReplaceSchedule(context.Background(), db, dev.ID, start, []model.PlannedHeatingSchedule{
		{DeviceID: dev.ID, Timestamp: start, PlannedAction: model.PlanRun},
		{DeviceID: dev.ID, Timestamp: start.Add(time.Hour), PlannedAction: model.PlanRest},
	}))

	rec := do(t, s, http.MethodGet, "/schedule", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]model.PlannedHeatingSchedule](t, rec)
	require.Len(t, rows, 2)
	assert.Equal(t, model.PlanRun, rows[0].PlannedAction)
}

func TestAwayMode(t *testing.T) {
	s, _, _ := newService(t)

	rec := do(t, s, http.MethodPost, "/devices/away", `{"enabled": true, "until": "2025-01-12T08:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	dev := decode[model.Device](t, rec)
	assert.True(t, dev.AwayModeEnabled)
	require.NotNil(t, dev.AwayModeEndDate)
	assert.Equal(t, time.Date(2025, 1, 12, 8, 0, 0, 0, time.UTC), dev.AwayModeEndDate.UTC())

	rec = do(t, s, http.MethodPost, "/devices/away", `{"enabled": true, "until": "2025-01-01T08:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/devices/away", `{"enabled": false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	dev = decode[model.Device](t, rec)
	assert.False(t, dev.AwayModeEnabled)
	assert.Nil(t, dev.AwayModeEndDate)

	rec = do(t, s, http.MethodGet, "/devices/away", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestComfort(t *testing.T) {
	s, _, _ := newService(t)

	rec := do(t, s, http.MethodPost, "/devices/comfort", `{"min_indoor_temp": 17, "target_indoor_temp_min": 20, "target_indoor_temp_max": 21}`)
	require.Equal(t, http.StatusOK, rec.Code)
	dev := decode[model.Device](t, rec)
	assert.Equal(t, 17.0, dev.MinIndoorTemp)
	assert.Equal(t, 21.0, dev.TargetIndoorTempMax)

	rec = do(t, s, http.MethodPost, "/devices/comfort", `{"min_indoor_temp": 17, "target_indoor_temp_min": 22, "target_indoor_temp_max": 21}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNoDevice(t *testing.T) {
	s := NewService(storetest.TempDB(t))
	rec := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
