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
	"fmt"
	"time"

	"heatpilot/v2/internal/model"
)

type sample struct {
	Time  time.Time
	Value float64
}

type valueCheck func(value float64, prev *sample, now time.Time) error

var valueChecks = map[string]valueCheck{
	model.ParamOutdoorTemp:    outdoorTempCheck,
	model.ParamSupplyTemp:     rangeCheck("supply temp", 0, 80),
	model.ParamReturnTemp:     rangeCheck("return temp", 0, 80),
	model.ParamIndoorTemp:     rangeCheck("indoor temp", 0, 40),
	model.ParamDegreeMinutes:  rangeCheck("degree minutes", -5000, 5000),
	model.ParamCurveOffset:    rangeCheck("curve offset", -10, 10),
	model.ParamHotWaterDemand: rangeCheck("hot water demand", 0, 2),
	model.ParamVentilation:    rangeCheck("ventilation", 0, 4),
}

// checkValue rejects readings that cannot be real. Codes without a check pass.
func checkValue(code string, value float64, prev *sample, now time.Time) error {
	check, ok := valueChecks[code]
	if !ok {
		return nil
	}
	return check(value, prev, now)
}

func rangeCheck(what string, lo, hi float64) valueCheck {
	return func(value float64, _ *sample, _ time.Time) error {
		if value < lo {
			return fmt.Errorf("%s too low: %.1f", what, value)
		}
		if value > hi {
			return fmt.Errorf("%s too high: %.1f", what, value)
		}
		return nil
	}
}

func outdoorTempCheck(tempC float64, prev *sample, now time.Time) error {
	if err := rangeCheck("air temp", -50, 50)(tempC, prev, now); err != nil {
		return err
	}
	if prev == nil {
		return nil // no prior data to compare
	}

	const maxChangeC = 15.0
	const maxInterval = 8 * time.Minute

	delta := tempC - prev.Value
	if delta < 0 {
		delta = -delta
	}
	dt := now.Sub(prev.Time)
	if dt < maxInterval && delta > maxChangeC {
		return fmt.Errorf("air temp changed too fast: Δ%.1f°C in %v", delta, dt.Truncate(time.Second))
	}
	return nil
}
