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

// Package planner projects indoor temperature and compressor demand over a
// forecast horizon and picks a run/rest schedule that keeps every zone above
// its floor while shifting heating into cheap hours.
package planner

import (
	"math"
	"sort"
	"time"

	"heatpilot/v2/internal/model"
	"heatpilot/v2/pkg/logger"
)

// Zone is one thermal zone. Coefficients are per hour.
type Zone struct {
	Name       string  `json:"name"`
	Temp       float64 `json:"temp"`
	Leak       float64 `json:"leak"`
	Efficiency float64 `json:"efficiency"`
	MinTemp    float64 `json:"min_temp"`
	MaxTemp    float64 `json:"max_temp"`
}

// Link exchanges heat between zones A and B at K per hour per °C.
type Link struct {
	A int     `json:"a"`
	B int     `json:"b"`
	K float64 `json:"k"`
}

type State struct {
	Zones         []Zone
	Links         []Link
	DegreeMinutes float64
}

type ForecastPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	OutdoorTemp float64   `json:"outdoor_temp"`
}

type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

type Config struct {
	Setpoint       float64 // °C the heating curve is balanced for
	DegPerStep     float64 // supply °C per curve offset step
	BoostOffset    float64 // offset when a zone is below its floor
	PreheatOffset  float64 // offset in cheap hours
	CoastOffset    float64 // offset in expensive hours
	GMMin          float64
	GMMax          float64
	GMRestDrain    float64 // fraction of the supply deficit accrued per minute while resting
	GMRecoveryRate float64 // degree minutes recovered per hour of running
}

func DefaultConfig() Config {
	return Config{
		Setpoint:       21,
		DegPerStep:     1.5,
		BoostOffset:    2,
		PreheatOffset:  2,
		CoastOffset:    -2,
		GMMin:          -1500,
		GMMax:          100,
		GMRestDrain:    0.1,
		GMRecoveryRate: 60,
	}
}

type Step struct {
	Timestamp     time.Time `json:"timestamp"`
	OutdoorTemp   float64   `json:"outdoor_temp"`
	Price         *float64  `json:"price"`
	Action        string    `json:"action"`
	Offset        float64   `json:"offset"`
	SupplyTemp    float64   `json:"supply_temp"`
	ZoneTemps     []float64 `json:"zone_temps"`
	DegreeMinutes float64   `json:"degree_minutes"`
}

// IndoorTemp is the mean projected zone temperature after the step.
func (s Step) IndoorTemp() float64 {
	if len(s.ZoneTemps) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, t := range s.ZoneTemps {
		sum += t
	}
	return sum / float64(len(s.ZoneTemps))
}

type Plan struct {
	Steps    []Step `json:"steps"`
	Degraded bool   `json:"degraded"`
	Reason   string `json:"reason,omitempty"`
}

// First returns the first step of the plan.
func (p Plan) First() (Step, bool) {
	if len(p.Steps) == 0 {
		return Step{}, false
	}
	return p.Steps[0], true
}

// ToSchedule converts the plan into schedule rows for a device.
func (p Plan) ToSchedule(deviceID uint) []model.PlannedHeatingSchedule {
	rows := make([]model.PlannedHeatingSchedule, 0, len(p.Steps))
	for _, s := range p.Steps {
		rows = append(rows, model.PlannedHeatingSchedule{
			DeviceID:            deviceID,
			Timestamp:           s.Timestamp,
			OutdoorTemp:         s.OutdoorTemp,
			Price:               s.Price,
			SimulatedIndoorTemp: s.IndoorTemp(),
			PlannedAction:       s.Action,
			PlannedOffset:       s.Offset,
			PlannedGMValue:      s.DegreeMinutes,
		})
	}
	return rows
}

type Planner struct {
	cfg Config
	log *logger.Logger
}

func New(cfg Config) *Planner {
	return &Planner{cfg: cfg, log: logger.New("Planner")}
}

type priceClass int

const (
	priceUnknown priceClass = iota
	priceCheap
	priceMid
	priceExpensive
)

// Simulate walks the forecast and decides each step. The result depends only
// on its inputs.
func (p *Planner) Simulate(state State, forecast []ForecastPoint, prices []PricePoint) Plan {
	if len(forecast) == 0 {
		p.log.Warn("no forecast: planning degraded to floor protection")
		return Plan{Steps: []Step{}, Degraded: true, Reason: "no forecast available"}
	}
	if len(state.Zones) == 0 {
		return Plan{Steps: []Step{}, Degraded: true, Reason: "no zones"}
	}

	forecast = append([]ForecastPoint(nil), forecast...)
	sort.SliceStable(forecast, func(i, j int) bool {
		return forecast[i].Timestamp.Before(forecast[j].Timestamp)
	})

	stepPrices := make([]*float64, len(forecast))
	for i, f := range forecast {
		stepPrices[i] = priceAt(prices, f.Timestamp)
	}
	cheapMax, expensiveMin, havePrices := priceThresholds(stepPrices)

	zones := append([]Zone(nil), state.Zones...)
	gm := state.DegreeMinutes
	plan := Plan{Steps: make([]Step, 0, len(forecast))}

	for i, f := range forecast {
		dt := stepHours(forecast, i)

		class := priceUnknown
		if havePrices && stepPrices[i] != nil {
			switch price := *stepPrices[i]; {
			case price <= cheapMax:
				class = priceCheap
			case price >= expensiveMin:
				class = priceExpensive
			default:
				class = priceMid
			}
		}

		action, offset := p.chooseAction(zones, state.Links, f.OutdoorTemp, dt, class)

		supply := CurveSupplyTemp(f.OutdoorTemp, p.cfg.Setpoint, offset, p.cfg.DegPerStep)
		run := 0.0
		if action != model.PlanRest {
			run = 1
		}
		temps := Advance(zones, state.Links, f.OutdoorTemp, supply, run, dt)
		gm = p.projectGM(gm, zones, supply, offset, run, dt)

		for j := range zones {
			zones[j].Temp = temps[j]
		}
		plan.Steps = append(plan.Steps, Step{
			Timestamp:     f.Timestamp,
			OutdoorTemp:   f.OutdoorTemp,
			Price:         stepPrices[i],
			Action:        action,
			Offset:        offset,
			SupplyTemp:    supply,
			ZoneTemps:     temps,
			DegreeMinutes: gm,
		})
	}
	return plan
}

// chooseAction applies the step priorities: floor protection first, then price.
func (p *Planner) chooseAction(zones []Zone, links []Link, outdoor, dt float64, class priceClass) (string, float64) {
	for _, z := range zones {
		if z.Temp < z.MinTemp {
			return model.PlanMustRun, p.cfg.BoostOffset
		}
	}

	project := func(offset, run float64) []float64 {
		supply := CurveSupplyTemp(outdoor, p.cfg.Setpoint, offset, p.cfg.DegPerStep)
		return Advance(zones, links, outdoor, supply, run, dt)
	}

	switch class {
	case priceCheap:
		if !anyAbove(zones, project(p.cfg.PreheatOffset, 1)) {
			return model.PlanRun, p.cfg.PreheatOffset
		}
		if !anyAbove(zones, project(0, 1)) {
			return model.PlanRun, 0
		}
		return model.PlanRest, 0

	case priceExpensive:
		if anyBelow(zones, project(p.cfg.CoastOffset, 0)) {
			return model.PlanRun, 0
		}
		return model.PlanRest, p.cfg.CoastOffset

	default:
		for _, z := range zones {
			if z.Temp < (z.MinTemp+z.MaxTemp)/2 {
				return model.PlanRun, 0
			}
		}
		return model.PlanRest, 0
	}
}

// projectGM estimates degree minutes after the step. Resting accrues the
// supply deficit against the zones, running recovers.
func (p *Planner) projectGM(gm float64, zones []Zone, supply, offset, run, dt float64) float64 {
	minutes := dt * 60
	if run == 0 {
		var indoor float64
		for _, z := range zones {
			indoor += z.Temp
		}
		indoor /= float64(len(zones))
		gm -= math.Max(0, supply-indoor) * minutes * p.cfg.GMRestDrain
	} else {
		gm += offset*minutes + p.cfg.GMRecoveryRate*dt
	}
	return math.Max(p.cfg.GMMin, math.Min(gm, p.cfg.GMMax))
}

func anyAbove(zones []Zone, temps []float64) bool {
	for i, z := range zones {
		if temps[i] > z.MaxTemp {
			return true
		}
	}
	return false
}

func anyBelow(zones []Zone, temps []float64) bool {
	for i, z := range zones {
		if temps[i] < z.MinTemp {
			return true
		}
	}
	return false
}

// stepHours is the spacing to the next forecast point; the last step reuses
// the previous spacing and a single point counts as one hour.
func stepHours(forecast []ForecastPoint, i int) float64 {
	switch {
	case i+1 < len(forecast):
		return forecast[i+1].Timestamp.Sub(forecast[i].Timestamp).Hours()
	case i > 0:
		return forecast[i].Timestamp.Sub(forecast[i-1].Timestamp).Hours()
	default:
		return 1
	}
}

// priceAt returns the latest price at or before ts, if it is under an hour old.
func priceAt(prices []PricePoint, ts time.Time) *float64 {
	var best *PricePoint
	for i := range prices {
		pp := &prices[i]
		if pp.Timestamp.After(ts) || ts.Sub(pp.Timestamp) >= time.Hour {
			continue
		}
		if best == nil || pp.Timestamp.After(best.Timestamp) {
			best = pp
		}
	}
	if best == nil {
		return nil
	}
	v := best.Price
	return &v
}

// priceThresholds returns the 33rd and 67th percentile of the known prices.
// ok is false when fewer than two distinct prices exist.
func priceThresholds(prices []*float64) (cheapMax, expensiveMin float64, ok bool) {
	vals := make([]float64, 0, len(prices))
	for _, p := range prices {
		if p != nil {
			vals = append(vals, *p)
		}
	}
	if len(vals) < 2 {
		return 0, 0, false
	}
	sort.Float64s(vals)
	if vals[0] == vals[len(vals)-1] {
		return 0, 0, false
	}
	return percentile(vals, 1.0/3), percentile(vals, 2.0/3), true
}

// percentile interpolates linearly in sorted vals.
func percentile(vals []float64, q float64) float64 {
	pos := q * float64(len(vals)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return vals[lo]*(1-frac) + vals[hi]*frac
}
