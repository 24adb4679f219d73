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

// Package safety validates proposed control changes against absolute and
// rate-of-change limits. It has no side effects.
package safety

import (
	"fmt"
	"math"
	"strings"

	"heatpilot/v2/internal/model"
)

// HardFloor is the indoor temperature (°C) below which heating is never reduced,
// whatever the user setting.
const HardFloor = 5.0

// ForcedStep is the curve offset increase applied when the house is below its floor.
const ForcedStep = 1.0

// Verdict is the outcome of a validation. Action, Parameter and Adjusted
// describe the change to apply when Accepted.
type Verdict struct {
	Accepted  bool     `json:"accepted"`
	Modified  bool     `json:"modified"`
	Reason    string   `json:"reason"`
	Action    string   `json:"action"`
	Parameter string   `json:"parameter,omitempty"`
	Adjusted  *float64 `json:"adjusted,omitempty"`
}

type check struct {
	action    string
	parameter string
	current   *float64
	value     *float64
	modified  bool
	notes     []string
}

func (c *check) note(format string, args ...any) {
	c.notes = append(c.notes, fmt.Sprintf(format, args...))
}

func (c *check) verdict(accepted bool) Verdict {
	v := Verdict{
		Accepted:  accepted,
		Modified:  c.modified,
		Reason:    strings.Join(c.notes, "; "),
		Action:    c.action,
		Parameter: c.parameter,
		Adjusted:  c.value,
	}
	if !accepted {
		v.Action = model.ActionHold
		v.Adjusted = nil
	}
	if v.Reason == "" {
		v.Reason = "within limits"
	}
	return v
}

// Validate checks a candidate for a device given the current indoor temperature
// and curve offset (nil when unknown). Rules apply in order: unknown indoor
// temperature, freeze protection, bounds, rate of change.
func Validate(c model.Candidate, device model.Device, indoor, curveOffset *float64) Verdict {
	chk := &check{
		action:    c.Action,
		parameter: c.Parameter,
		current:   c.CurrentValue,
		value:     c.SuggestedValue,
	}

	if err := c.Validate(); err != nil {
		chk.note("%v", err)
		return chk.verdict(false)
	}
	if c.Action == model.ActionHold {
		chk.value = nil
	}

	lowers := lowersHeating(chk)

	if indoor == nil {
		if lowers {
			chk.note("indoor temperature unknown: refusing to lower heating output")
			return chk.verdict(false)
		}
		chk.note("indoor temperature unknown, proceeding with caution")
	}

	floor := math.Max(device.MinIndoorTemp, HardFloor)
	if indoor != nil && *indoor < floor {
		if lowers {
			chk.note("indoor %.1f°C below minimum %.1f°C: refusing to lower heating output", *indoor, floor)
			return chk.verdict(false)
		}
		if chk.action == model.ActionHold {
			if curveOffset == nil {
				chk.note("indoor %.1f°C below minimum %.1f°C but current curve offset unknown: holding", *indoor, floor)
				return chk.verdict(true)
			}
			forceIncrease(chk, *curveOffset, *indoor, floor)
		}
	}

	info, ok := model.Lookup(chk.parameter)
	if chk.action == model.ActionAdjust && ok && info.Bounds != nil && chk.value != nil {
		b := info.Bounds
		v := *chk.value
		if clamped := math.Max(b.Min, math.Min(v, b.Max)); clamped != v {
			chk.value = &clamped
			chk.modified = true
			chk.note("%s %.1f clamped to [%g, %g]", info.Name, v, b.Min, b.Max)
		}

		if b.MaxStep > 0 {
			if chk.current == nil {
				chk.note("current %s unknown: step limit not applied", info.Name)
			} else if step := *chk.value - *chk.current; math.Abs(step) > b.MaxStep {
				limited := *chk.current + math.Copysign(b.MaxStep, step)
				chk.value = &limited
				chk.modified = true
				chk.note("%s step %+.1f limited to %+.1f", info.Name, step, math.Copysign(b.MaxStep, step))
			}
		}
	}

	return chk.verdict(true)
}

// forceIncrease turns a hold into a ForcedStep raise of the curve offset.
func forceIncrease(chk *check, current, indoor, floor float64) {
	raised := current + ForcedStep
	chk.action = model.ActionAdjust
	chk.parameter = model.ParamCurveOffset
	chk.current = &current
	chk.value = &raised
	chk.modified = true
	chk.note("indoor %.1f°C below minimum %.1f°C: forcing curve offset %+.1f", indoor, floor, ForcedStep)
}

// heatingDelta is the signed change in heating output: positive means more heat.
// ok is false when the direction cannot be determined.
func heatingDelta(chk *check) (delta float64, ok bool) {
	if chk.action != model.ActionAdjust || chk.value == nil {
		return 0, true
	}
	info, known := model.Lookup(chk.parameter)
	if !known || info.Sense == model.SenseNone {
		return 0, true
	}
	if chk.current == nil {
		return 0, false
	}
	return float64(info.Sense) * (*chk.value - *chk.current), true
}

// lowersHeating is true for decreases and for changes of unknown direction.
func lowersHeating(chk *check) bool {
	d, ok := heatingDelta(chk)
	return !ok || d < 0
}
