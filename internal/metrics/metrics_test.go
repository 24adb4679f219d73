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

package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"heatpilot/v2/internal/model"
	"heatpilot/v2/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func TestEstimateCOPMonotonic(t *testing.T) {
	const ret = 30.0
	prev := EstimateCOP(5, 30, ret)
	for supply := 31.0; supply <= 60; supply++ {
		cop := EstimateCOP(5, supply, ret)
		assert.LessOrEqual(t, cop, prev, "supply %v", supply)
		assert.GreaterOrEqual(t, cop, 1.0)
		prev = cop
	}

	prev = EstimateCOP(10, 40, ret)
	for outdoor := 9.0; outdoor >= -30; outdoor-- {
		cop := EstimateCOP(outdoor, 40, ret)
		assert.LessOrEqual(t, cop, prev, "outdoor %v", outdoor)
		assert.GreaterOrEqual(t, cop, 1.0)
		prev = cop
	}
}

func TestEstimateCOPClamped(t *testing.T) {
	assert.Equal(t, 7.0, EstimateCOP(25, 20, 20))
	assert.Equal(t, 1.0, EstimateCOP(-200, 60, 55))
	assert.InDelta(t, 0.4*(33+273.15)/33, EstimateCOP(0, 35, 31), 1e-9)
}

func TestGetLatestValue(t *testing.T) {
	db := storetest.TempDB(t)
	ctx := context.Background()
	dev := storetest.SeedDevice(t, db)
	storetest.SeedParameters(t, db)

	_, ok, err := GetLatestValue(ctx, db, dev.ID, model.ParamIndoorTemp)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = GetLatestValue(ctx, db, dev.ID, "99999")
	require.NoError(t, err)
	assert.False(t, ok)

	storetest.AddReading(t, db, dev.ID, model.ParamIndoorTemp, t0.Add(time.Hour), 21.5)
	storetest.AddReading(t, db, dev.ID, model.ParamIndoorTemp, t0, 20.0)

	v, ok, err := GetLatestValue(ctx, db, dev.ID, model.ParamIndoorTemp)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 21.5, v)
}

func TestCOPTimeseriesTolerance(t *testing.T) {
	db := storetest.TempDB(t)
	ctx := context.Background()
	dev := storetest.SeedDevice(t, db)
	storetest.SeedParameters(t, db)

	// matched within 4 minutes
	storetest.AddReading(t, db, dev.ID, model.ParamSupplyTemp, t0, 35)
	storetest.AddReading(t, db, dev.ID, model.ParamOutdoorTemp, t0.Add(4*time.Minute), 0)
	storetest.AddReading(t, db, dev.ID, model.ParamReturnTemp, t0.Add(-3*time.Minute), 31)

	// return is 6 minutes away
	ts := t0.Add(time.Hour)
	storetest.AddReading(t, db, dev.ID, model.ParamSupplyTemp, ts, 40)
	storetest.AddReading(t, db, dev.ID, model.ParamOutdoorTemp, ts, 0)
	storetest.AddReading(t, db, dev.ID, model.ParamReturnTemp, ts.Add(6*time.Minute), 33)

	// both partners exactly 5 minutes away
	edge := t0.Add(2 * time.Hour)
	storetest.AddReading(t, db, dev.ID, model.ParamSupplyTemp, edge, 38)
	storetest.AddReading(t, db, dev.ID, model.ParamOutdoorTemp, edge.Add(-5*time.Minute), 2)
	storetest.AddReading(t, db, dev.ID, model.ParamReturnTemp, edge.Add(5*time.Minute), 32)

	points, err := GetCOPTimeseries(ctx, db, dev.ID, t0.Add(-time.Hour), t0.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.True(t, points[0].Timestamp.Equal(t0))
	assert.InDelta(t, EstimateCOP(0, 35, 31), points[0].COP, 1e-9)
	assert.True(t, points[1].Timestamp.Equal(edge))
	assert.InDelta(t, EstimateCOP(2, 38, 32), points[1].COP, 1e-9)
}

func TestNearestPicksClosest(t *testing.T) {
	samples := []Sample{
		{Timestamp: t0, Value: 1},
		{Timestamp: t0.Add(3 * time.Minute), Value: 2},
		{Timestamp: t0.Add(10 * time.Minute), Value: 3},
	}
	s, ok := nearest(samples, t0.Add(2*time.Minute), MatchTolerance)
	require.True(t, ok)
	assert.Equal(t, 2.0, s.Value)

	s, ok = nearest(samples, t0.Add(16*time.Minute), MatchTolerance)
	assert.False(t, ok)

	_, ok = nearest(nil, t0, MatchTolerance)
	assert.False(t, ok)
}

func TestCalculateMetrics(t *testing.T) {
	db := storetest.TempDB(t)
	ctx := context.Background()
	dev := storetest.SeedDevice(t, db)
	storetest.SeedParameters(t, db)

	now := t0.Add(3 * time.Hour)
	for i := 0; i < 3; i++ {
		ts := t0.Add(time.Duration(i) * time.Hour)
		storetest.AddReading(t, db, dev.ID, model.ParamIndoorTemp, ts, 20+float64(i))
		storetest.AddReading(t, db, dev.ID, model.ParamOutdoorTemp, ts, -2)
		storetest.AddReading(t, db, dev.ID, model.ParamSupplyTemp, ts, 35)
		storetest.AddReading(t, db, dev.ID, model.ParamReturnTemp, ts, 31)
		storetest.AddReading(t, db, dev.ID, model.ParamDegreeMinutes, ts, -100*float64(i))
	}
	// outside the window
	storetest.AddReading(t, db, dev.ID, model.ParamIndoorTemp, t0.Add(-5*time.Hour), 5)

	snap, err := CalculateMetricsAt(ctx, db, dev.ID, now, 4)
	require.NoError(t, err)

	require.NotNil(t, snap.AvgIndoorTemp)
	assert.InDelta(t, 21.0, *snap.AvgIndoorTemp, 1e-9)
	require.NotNil(t, snap.AvgOutdoorTemp)
	assert.InDelta(t, -2.0, *snap.AvgOutdoorTemp, 1e-9)
	require.NotNil(t, snap.COP)
	assert.InDelta(t, EstimateCOP(-2, 35, 31), *snap.COP, 1e-9)
	require.NotNil(t, snap.DegreeMinutes)
	assert.Equal(t, -200.0, *snap.DegreeMinutes)
	require.NotNil(t, snap.DegreeMinutesTrend)
	assert.InDelta(t, -100.0, *snap.DegreeMinutesTrend, 1e-9)
	assert.Nil(t, snap.CurveOffset)
}

func TestCalculateMetricsEmpty(t *testing.T) {
	db := storetest.TempDB(t)
	dev := storetest.SeedDevice(t, db)
	storetest.SeedParameters(t, db)

	snap, err := CalculateMetricsAt(context.Background(), db, dev.ID, t0, 24)
	require.NoError(t, err)
	assert.Nil(t, snap.AvgIndoorTemp)
	assert.Nil(t, snap.COP)
	assert.Nil(t, snap.DegreeMinutesTrend)
}

func TestQueryErrorMatchesSentinel(t *testing.T) {
	db := storetest.TempDB(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, _, err = GetLatestValue(context.Background(), db, 1, model.ParamIndoorTemp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueryFailed))
	var qe *QueryError
	assert.True(t, errors.As(err, &qe))
}
