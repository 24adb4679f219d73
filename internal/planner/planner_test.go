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

package planner

import (
	"testing"
	"time"

	"heatpilot/v2/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

func hourly(temps ...float64) []ForecastPoint {
	fc := make([]ForecastPoint, len(temps))
	for i, temp := range temps {
		fc[i] = ForecastPoint{Timestamp: t0.Add(time.Duration(i) * time.Hour), OutdoorTemp: temp}
	}
	return fc
}

func hourlyPrices(prices ...float64) []PricePoint {
	pp := make([]PricePoint, len(prices))
	for i, p := range prices {
		pp[i] = PricePoint{Timestamp: t0.Add(time.Duration(i) * time.Hour), Price: p}
	}
	return pp
}

func livingRoom(temp float64) Zone {
	return Zone{Name: "living", Temp: temp, Leak: 0.05, Efficiency: 0.15, MinTemp: 19, MaxTemp: 23}
}

func TestEmptyForecastIsDegraded(t *testing.T) {
	p := New(DefaultConfig())
	plan := p.Simulate(State{Zones: []Zone{livingRoom(21)}}, nil, nil)
	assert.True(t, plan.Degraded)
	assert.Empty(t, plan.Steps)
	_, ok := plan.First()
	assert.False(t, ok)
}

func TestFloorProtectionOverridesPrice(t *testing.T) {
	p := New(DefaultConfig())
	state := State{Zones: []Zone{livingRoom(18.5)}}
	plan := p.Simulate(state, hourly(0, 0, 0), hourlyPrices(0.5, 0.1, 0.2))

	first, ok := plan.First()
	require.True(t, ok)
	assert.Equal(t, model.PlanMustRun, first.Action)
	assert.Equal(t, DefaultConfig().BoostOffset, first.Offset)
}

func TestCostAwareScheduling(t *testing.T) {
	p := New(DefaultConfig())
	state := State{Zones: []Zone{livingRoom(21)}}
	plan := p.Simulate(state, hourly(0, 0, 0, 0), hourlyPrices(0.10, 0.30, 0.50, 0.20))
	require.Len(t, plan.Steps, 4)

	actions := []string{}
	for _, s := range plan.Steps {
		actions = append(actions, s.Action)
	}
	assert.Equal(t, []string{model.PlanRun, model.PlanRest, model.PlanRest, model.PlanRun}, actions)
	assert.Equal(t, DefaultConfig().PreheatOffset, plan.Steps[0].Offset)
	assert.Equal(t, DefaultConfig().CoastOffset, plan.Steps[1].Offset)
	for _, s := range plan.Steps {
		assert.GreaterOrEqual(t, s.IndoorTemp(), 19.0)
	}
}

func TestPreheatRespectsCeiling(t *testing.T) {
	p := New(DefaultConfig())
	zone := livingRoom(22.8)
	zone.MaxTemp = 22.9
	plan := p.Simulate(State{Zones: []Zone{zone}}, hourly(0, 0), hourlyPrices(0.1, 0.4))

	first, _ := plan.First()
	assert.Equal(t, model.PlanRun, first.Action)
	assert.Equal(t, 0.0, first.Offset)
	assert.LessOrEqual(t, first.IndoorTemp(), 22.9)
}

func TestWithoutPricesKeepsBandMidpoint(t *testing.T) {
	p := New(DefaultConfig())

	plan := p.Simulate(State{Zones: []Zone{livingRoom(20)}}, hourly(0), nil)
	first, _ := plan.First()
	assert.Equal(t, model.PlanRun, first.Action)
	assert.Nil(t, first.Price)

	plan = p.Simulate(State{Zones: []Zone{livingRoom(22)}}, hourly(0), nil)
	first, _ = plan.First()
	assert.Equal(t, model.PlanRest, first.Action)
}

func TestTrajectoryIsReproducible(t *testing.T) {
	p := New(DefaultConfig())
	state := State{
		Zones: []Zone{
			livingRoom(21),
			{Name: "bedroom", Temp: 19.5, Leak: 0.07, Efficiency: 0.12, MinTemp: 17, MaxTemp: 21},
		},
		Links: []Link{{A: 0, B: 1, K: 0.1}},
	}
	fc := []ForecastPoint{
		{Timestamp: t0, OutdoorTemp: -5},
		{Timestamp: t0.Add(30 * time.Minute), OutdoorTemp: -6},
		{Timestamp: t0.Add(90 * time.Minute), OutdoorTemp: -8},
		{Timestamp: t0.Add(150 * time.Minute), OutdoorTemp: -7},
	}
	plan := p.Simulate(state, fc, hourlyPrices(0.2, 0.3, 0.1))
	require.Len(t, plan.Steps, 4)

	again := p.Simulate(state, fc, hourlyPrices(0.2, 0.3, 0.1))
	assert.Equal(t, plan, again)

	zones := append([]Zone(nil), state.Zones...)
	dts := []float64{0.5, 1, 1, 1}
	for i, s := range plan.Steps {
		run := 1.0
		if s.Action == model.PlanRest {
			run = 0
		}
		want := Advance(zones, state.Links, s.OutdoorTemp, s.SupplyTemp, run, dts[i])
		require.Len(t, s.ZoneTemps, 2)
		for j := range want {
			assert.InDelta(t, want[j], s.ZoneTemps[j], 1e-12)
			zones[j].Temp = want[j]
		}
	}
}

func TestAdvanceConservesHeatBetweenZones(t *testing.T) {
	zones := []Zone{{Temp: 24}, {Temp: 16}}
	next := Advance(zones, []Link{{A: 0, B: 1, K: 0.25}}, 0, 0, 0, 1)
	assert.InDelta(t, 40.0, next[0]+next[1], 1e-12)
	assert.InDelta(t, 22.0, next[0], 1e-12)
}

func TestCurveSupplyTempClamped(t *testing.T) {
	assert.Equal(t, 27.0, CurveSupplyTemp(15, 21, 0, 1.5))
	assert.Equal(t, 45.0, CurveSupplyTemp(-30, 21, 9, 1.5))
	assert.Greater(t, CurveSupplyTemp(-10, 21, 0, 1.5), CurveSupplyTemp(0, 21, 0, 1.5))
}

func TestPriceThresholds(t *testing.T) {
	v := func(f ...float64) []*float64 {
		out := make([]*float64, len(f))
		for i := range f {
			out[i] = &f[i]
		}
		return out
	}
	cheap, expensive, ok := priceThresholds(v(0.5, 0.1, 0.3, 0.2))
	require.True(t, ok)
	assert.InDelta(t, 0.2, cheap, 1e-12)
	assert.InDelta(t, 0.3, expensive, 1e-12)

	_, _, ok = priceThresholds(v(0.2, 0.2, 0.2))
	assert.False(t, ok)
	_, _, ok = priceThresholds(nil)
	assert.False(t, ok)
}

func TestToSchedule(t *testing.T) {
	p := New(DefaultConfig())
	plan := p.Simulate(State{Zones: []Zone{livingRoom(21)}, DegreeMinutes: -50}, hourly(0, 1), hourlyPrices(0.1, 0.2))
	rows := plan.ToSchedule(7)
	require.Len(t, rows, 2)
	assert.Equal(t, uint(7), rows[0].DeviceID)
	assert.Equal(t, plan.Steps[0].Action, rows[0].PlannedAction)
	assert.Equal(t, plan.Steps[1].DegreeMinutes, rows[1].PlannedGMValue)
	assert.InDelta(t, plan.Steps[0].IndoorTemp(), rows[0].SimulatedIndoorTemp, 1e-12)
}
