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

import "math"

var (
	// LWT
	maxSupplyTemp float64 = 45 // °C
	minSupplyTemp float64 = 27 // °C

	// home envelope
	heatLossCoefficient float64 = 0.2102 // kW/°C
	heatLossBaseDt      float64 = 4.5    // °C

	// hydronics
	flowRate    float64 = 0.293 // L/s (== Kg/s)
	h2oConst    float64 = 4.186 // kJ/(kg·°C)
	radHeatCoef float64 = 0.395 // kW/°C
)

// CurveSupplyTemp is the heating curve: the supply temperature that balances
// the expected heat loss at setpoint, shifted by offset steps and clamped to
// the supply limits.
func CurveSupplyTemp(outdoorTC, setpointTC, offset, degPerStep float64) float64 {
	supplyTC := targetSupplyTemp(setpointTC, expectedHeatLoadKW(setpointTC, outdoorTC))
	supplyTC += offset * degPerStep
	supplyTC = math.Max(supplyTC, minSupplyTemp)
	supplyTC = math.Min(supplyTC, maxSupplyTemp)
	return supplyTC
}

func expectedHeatLoadKW(roomTC, outdoorTC float64) float64 {
	dT := roomTC - outdoorTC

	if dT < 2.5 {
		return 0
	}
	minKW := 0.35
	return math.Max(heatLossCoefficient*(dT-heatLossBaseDt), minKW)
}

func targetSupplyTemp(indoorTC, targetQgain float64) float64 {
	advCoef := radHeatCoef / (1 - (radHeatCoef / (2 * h2oConst * flowRate)))
	supplyTC := targetQgain/advCoef + indoorTC

	// supply cannot be below indoor temperature
	if supplyTC < indoorTC {
		supplyTC = indoorTC
	}
	return supplyTC
}

// Advance moves zone temperatures forward by dt hours with one explicit Euler step:
//
//	dT_i = dt * ( -leak_i*(T_i - T_out) + run*eff_i*(T_supply - T_i) + Σ_j k_ij*(T_j - T_i) )
//
// run is 1 when the heat pump runs and 0 when it rests.
func Advance(zones []Zone, links []Link, outdoor, supply, run, dt float64) []float64 {
	next := make([]float64, len(zones))
	for i, z := range zones {
		dT := -z.Leak*(z.Temp-outdoor) + run*z.Efficiency*(supply-z.Temp)
		next[i] = dT
	}
	for _, l := range links {
		if l.A < 0 || l.B < 0 || l.A >= len(zones) || l.B >= len(zones) || l.A == l.B {
			continue
		}
		flow := l.K * (zones[l.B].Temp - zones[l.A].Temp)
		next[l.A] += flow
		next[l.B] -= flow
	}
	for i, z := range zones {
		next[i] = z.Temp + dt*next[i]
	}
	return next
}
