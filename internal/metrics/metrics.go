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

// Package metrics derives averages, COP estimates and degree-minute trends
// from stored readings.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"heatpilot/v2/internal/model"
	"heatpilot/v2/internal/store"

	"gorm.io/gorm"
)

// MatchTolerance is how far apart readings of different sensors may be and
// still count as the same instant.
const MatchTolerance = 5 * time.Minute

var ErrQueryFailed = errors.New("metrics query failed")

// QueryError wraps a storage failure. It matches ErrQueryFailed.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("metrics %s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

func (e *QueryError) Is(target error) bool { return target == ErrQueryFailed }

func queryErr(op string, err error) error {
	return &QueryError{Op: op, Err: err}
}

type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Snapshot summarises a window of readings. A nil field means unknown.
type Snapshot struct {
	DeviceID           uint      `json:"device_id"`
	From               time.Time `json:"from"`
	To                 time.Time `json:"to"`
	AvgIndoorTemp      *float64  `json:"avg_indoor_temp"`
	AvgOutdoorTemp     *float64  `json:"avg_outdoor_temp"`
	AvgSupplyTemp      *float64  `json:"avg_supply_temp"`
	AvgReturnTemp      *float64  `json:"avg_return_temp"`
	COP                *float64  `json:"cop"`
	DegreeMinutes      *float64  `json:"degree_minutes"`
	DegreeMinutesTrend *float64  `json:"degree_minutes_trend"` // per hour
	CurveOffset        *float64  `json:"curve_offset"`
}

type COPPoint struct {
	Timestamp time.Time `json:"timestamp"`
	COP       float64   `json:"cop"`
	Outdoor   float64   `json:"outdoor"`
	Supply    float64   `json:"supply"`
	Return    float64   `json:"return"`
}

// GetLatestValue returns the newest reading of a parameter. ok is false when the
// parameter is unknown or has never been read.
func GetLatestValue(ctx context.Context, db *gorm.DB, deviceID uint, code string) (value float64, ok bool, err error) {
	p, err := store.FindParameter(ctx, db, code)
	if err != nil {
		return 0, false, queryErr("find parameter "+code, err)
	}
	if p == nil {
		return 0, false, nil
	}
	r, err := store.LatestReading(ctx, db, deviceID, p.ID)
	if err != nil {
		return 0, false, queryErr("latest "+code, err)
	}
	if r == nil {
		return 0, false, nil
	}
	return r.Value, true, nil
}

// GetReadings returns the samples of a parameter in [start, end], oldest first.
func GetReadings(ctx context.Context, db *gorm.DB, deviceID uint, code string, start, end time.Time) ([]Sample, error) {
	p, err := store.FindParameter(ctx, db, code)
	if err != nil {
		return nil, queryErr("find parameter "+code, err)
	}
	if p == nil {
		return []Sample{}, nil
	}
	rows, err := store.QueryReadings(ctx, db, deviceID, p.ID, start, end)
	if err != nil {
		return nil, queryErr("readings "+code, err)
	}
	samples := make([]Sample, len(rows))
	for i, r := range rows {
		samples[i] = Sample{Timestamp: r.Timestamp, Value: r.Value}
	}
	return samples, nil
}

// CalculateMetrics summarises the last hoursBack hours.
func CalculateMetrics(ctx context.Context, db *gorm.DB, deviceID uint, hoursBack float64) (Snapshot, error) {
	return CalculateMetricsAt(ctx, db, deviceID, time.Now(), hoursBack)
}

// CalculateMetricsAt summarises [now - hoursBack, now].
func CalculateMetricsAt(ctx context.Context, db *gorm.DB, deviceID uint, now time.Time, hoursBack float64) (Snapshot, error) {
	start := now.Add(-time.Duration(hoursBack * float64(time.Hour)))
	snap := Snapshot{DeviceID: deviceID, From: start, To: now}

	series := map[string][]Sample{}
	for _, code := range []string{
		model.ParamIndoorTemp, model.ParamOutdoorTemp, model.ParamSupplyTemp,
		model.ParamReturnTemp, model.ParamDegreeMinutes,
	} {
		s, err := GetReadings(ctx, db, deviceID, code, start, now)
		if err != nil {
			return snap, err
		}
		series[code] = s
	}

	snap.AvgIndoorTemp = mean(series[model.ParamIndoorTemp])
	snap.AvgOutdoorTemp = mean(series[model.ParamOutdoorTemp])
	snap.AvgSupplyTemp = mean(series[model.ParamSupplyTemp])
	snap.AvgReturnTemp = mean(series[model.ParamReturnTemp])

	points := alignCOP(series[model.ParamOutdoorTemp], series[model.ParamSupplyTemp], series[model.ParamReturnTemp])
	if len(points) > 0 {
		var sum float64
		for _, p := range points {
			sum += p.COP
		}
		snap.COP = ptr(sum / float64(len(points)))
	}

	if gm := series[model.ParamDegreeMinutes]; len(gm) > 0 {
		snap.DegreeMinutes = ptr(gm[len(gm)-1].Value)
		snap.DegreeMinutesTrend = slopePerHour(gm)
	}

	offset, ok, err := GetLatestValue(ctx, db, deviceID, model.ParamCurveOffset)
	if err != nil {
		return snap, err
	}
	if ok {
		snap.CurveOffset = ptr(offset)
	}
	return snap, nil
}

// GetCOPTimeseries estimates COP at every supply sample in [start, end] that has
// both an outdoor and a return reading within MatchTolerance.
func GetCOPTimeseries(ctx context.Context, db *gorm.DB, deviceID uint, start, end time.Time) ([]COPPoint, error) {
	// extend partner series so samples near the edges can still match
	outdoor, err := GetReadings(ctx, db, deviceID, model.ParamOutdoorTemp, start.Add(-MatchTolerance), end.Add(MatchTolerance))
	if err != nil {
		return nil, err
	}
	supply, err := GetReadings(ctx, db, deviceID, model.ParamSupplyTemp, start, end)
	if err != nil {
		return nil, err
	}
	ret, err := GetReadings(ctx, db, deviceID, model.ParamReturnTemp, start.Add(-MatchTolerance), end.Add(MatchTolerance))
	if err != nil {
		return nil, err
	}
	return alignCOP(outdoor, supply, ret), nil
}

func alignCOP(outdoor, supply, ret []Sample) []COPPoint {
	points := []COPPoint{}
	for _, s := range supply {
		o, ok := nearest(outdoor, s.Timestamp, MatchTolerance)
		if !ok {
			continue
		}
		r, ok := nearest(ret, s.Timestamp, MatchTolerance)
		if !ok {
			continue
		}
		points = append(points, COPPoint{
			Timestamp: s.Timestamp,
			COP:       EstimateCOP(o.Value, s.Value, r.Value),
			Outdoor:   o.Value,
			Supply:    s.Value,
			Return:    r.Value,
		})
	}
	return points
}

// nearest finds the sample closest to ts in a time-ordered slice.
func nearest(samples []Sample, ts time.Time, tol time.Duration) (Sample, bool) {
	i := sort.Search(len(samples), func(i int) bool {
		return !samples[i].Timestamp.Before(ts)
	})
	best, found := Sample{}, false
	bestDist := tol + 1
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(samples) {
			continue
		}
		d := samples[j].Timestamp.Sub(ts)
		if d < 0 {
			d = -d
		}
		if d <= tol && d < bestDist {
			best, bestDist, found = samples[j], d, true
		}
	}
	return best, found
}

func mean(samples []Sample) *float64 {
	if len(samples) == 0 {
		return nil
	}
	var sum float64
	for _, s := range samples {
		sum += s.Value
	}
	return ptr(sum / float64(len(samples)))
}

// slopePerHour is the least squares slope of the samples, in units per hour.
func slopePerHour(samples []Sample) *float64 {
	if len(samples) < 2 {
		return nil
	}
	t0 := samples[0].Timestamp
	n := float64(len(samples))
	var sx, sy, sxx, sxy float64
	for _, s := range samples {
		x := s.Timestamp.Sub(t0).Hours()
		sx += x
		sy += s.Value
		sxx += x * x
		sxy += x * s.Value
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return nil
	}
	return ptr((n*sxy - sx*sy) / den)
}

func ptr(v float64) *float64 { return &v }
