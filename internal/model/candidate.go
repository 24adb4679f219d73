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

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidCandidate = errors.New("invalid candidate decision")

// Candidate is a proposed control change, before any safety checks.
type Candidate struct {
	Action         string   `json:"action"`
	Parameter      string   `json:"parameter,omitempty"`
	CurrentValue   *float64 `json:"current_value,omitempty"`
	SuggestedValue *float64 `json:"suggested_value,omitempty"`
	Reasoning      string   `json:"reasoning"`
	Confidence     float64  `json:"confidence"`
	HotWaterDemand *float64 `json:"hot_water_demand,omitempty"`
}

// Hold returns a candidate that changes nothing.
func Hold(reason string) Candidate {
	return Candidate{Action: ActionHold, Reasoning: reason}
}

// Validate checks the candidate is well formed. It says nothing about whether
// the change is safe.
func (c Candidate) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidCandidate, fmt.Sprintf(format, args...))
	}

	if c.Confidence < 0 || c.Confidence > 1 || math.IsNaN(c.Confidence) {
		return invalid("confidence %v outside [0, 1]", c.Confidence)
	}
	if c.HotWaterDemand != nil {
		v := *c.HotWaterDemand
		if v != HotWaterSmall && v != HotWaterMedium && v != HotWaterLarge {
			return invalid("hot water demand %v is not a known level", v)
		}
	}
	if c.CurrentValue != nil && !finite(*c.CurrentValue) {
		return invalid("current value is not finite")
	}

	switch c.Action {
	case ActionHold:
		return nil
	case ActionAdjust:
		info, ok := Lookup(c.Parameter)
		if !ok || info.Bounds == nil {
			return invalid("parameter %q is not writable", c.Parameter)
		}
		if c.SuggestedValue == nil || !finite(*c.SuggestedValue) {
			return invalid("adjust requires a finite suggested value")
		}
		return nil
	default:
		return invalid("unknown action %q", c.Action)
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
