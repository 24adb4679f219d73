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

package model

// Sense is how raising a parameter changes heating output.
type Sense int

const (
	SenseNone Sense = 0
	SenseMore Sense = 1  // a higher value means more heat
	SenseLess Sense = -1 // a higher value means less heat
)

// Bounds is the admissible range of a writable parameter.
type Bounds struct {
	Min     float64
	Max     float64
	MaxStep float64 // 0 means no rate limit
}

// ParameterInfo describes how the control core treats a parameter.
type ParameterInfo struct {
	Code   string
	Name   string
	Unit   string
	Sense  Sense
	Bounds *Bounds
}

var knownParameters = map[string]ParameterInfo{
	ParamOutdoorTemp: {Code: ParamOutdoorTemp, Name: "Outdoor temperature", Unit: "°C"},
	ParamSupplyTemp:  {Code: ParamSupplyTemp, Name: "Supply line", Unit: "°C"},
	ParamReturnTemp:  {Code: ParamReturnTemp, Name: "Return line", Unit: "°C"},
	ParamIndoorTemp:  {Code: ParamIndoorTemp, Name: "Room temperature", Unit: "°C"},
	ParamDegreeMinutes: {
		Code: ParamDegreeMinutes, Name: "Degree minutes", Unit: "DM",
		// more negative demand starts the compressor sooner
		Sense:  SenseLess,
		Bounds: &Bounds{Min: -3000, Max: 100},
	},
	ParamCurveOffset: {
		Code: ParamCurveOffset, Name: "Heating curve offset", Unit: "",
		Sense:  SenseMore,
		Bounds: &Bounds{Min: -9, Max: 9, MaxStep: 3},
	},
	ParamHotWaterDemand: {
		Code: ParamHotWaterDemand, Name: "Hot water demand", Unit: "",
		Bounds: &Bounds{Min: HotWaterSmall, Max: HotWaterLarge},
	},
	ParamVentilation: {
		Code: ParamVentilation, Name: "Ventilation speed", Unit: "",
		Bounds: &Bounds{Min: 0, Max: 4, MaxStep: 1},
	},
}

// Lookup returns what is known about a parameter code.
func Lookup(code string) (ParameterInfo, bool) {
	p, ok := knownParameters[code]
	return p, ok
}
