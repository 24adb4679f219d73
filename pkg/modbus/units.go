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

package modbus

// ToCelsius converts a decoded register value to °C according to its unit.
func (r RegisterDef) ToCelsius(v float64) float64 {
	if r.Unit == "F" {
		return fToC(v)
	}
	return v
}

// FromCelsius is the inverse of ToCelsius.
func (r RegisterDef) FromCelsius(c float64) float64 {
	if r.Unit == "F" {
		return cToF(c)
	}
	return c
}

func cToF(c float64) float64 {
	return c*(9.0/5.0) + 32.0
}

func fToC(f float64) float64 {
	return (f - 32.0) * (5.0 / 9.0)
}
