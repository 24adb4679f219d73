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

import "math"

const (
	// fraction of the Carnot limit a typical air/water unit reaches
	carnotEfficiency = 0.4
	copMin           = 1.0
	copMax           = 7.0
	kelvin           = 273.15
)

// EstimateCOP estimates the coefficient of performance from line and outdoor
// temperatures (°C). The estimate never increases as the supply/outdoor spread
// widens and is clamped to [1, 7].
func EstimateCOP(outdoor, supply, ret float64) float64 {
	mean := (supply + ret) / 2
	lift := mean - outdoor
	if lift <= 0 {
		return copMax
	}
	cop := carnotEfficiency * (mean + kelvin) / lift
	return math.Max(copMin, math.Min(cop, copMax))
}
