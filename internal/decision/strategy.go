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

package decision

import (
	"context"
	"fmt"
	"math"
	"time"

	"heatpilot/v2/internal/decision/pictrl"
	"heatpilot/v2/internal/metrics"
	"heatpilot/v2/internal/model"
	"heatpilot/v2/internal/planner"
)

// Band is the indoor comfort range in °C.
type Band struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (b Band) Mid() float64 { return (b.Min + b.Max) / 2 }

// Inputs is everything a strategy may base its proposal on.
type Inputs struct {
	Now           time.Time
	Device        model.Device
	Band          Band
	Snapshot      metrics.Snapshot
	Plan          planner.Plan
	CurrentOffset *float64
}

// Strategy proposes a candidate decision. Errors degrade the cycle to a hold.
type Strategy interface {
	Propose(ctx context.Context, in Inputs) (model.Candidate, error)
}

// StaticStrategy always proposes the same candidate.
type StaticStrategy struct {
	Candidate model.Candidate
	Err       error
}

func (s StaticStrategy) Propose(ctx context.Context, in Inputs) (model.Candidate, error) {
	return s.Candidate, s.Err
}

// RuleStrategy steers the curve offset with a PI controller on the comfort
// band midpoint, nudged towards the planner's first step.
type RuleStrategy struct {
	pi         *pictrl.PIController
	planWeight float64
}

func NewRuleStrategy() *RuleStrategy {
	pi := pictrl.NewPIController(1.5, 0.1).
		WithOutputLimits(-6, 6).
		WithDeadband(0.2).
		WithDecay(0.9).
		WithAntiWindup(true)
	return &RuleStrategy{pi: pi, planWeight: 0.5}
}

func (s *RuleStrategy) Propose(ctx context.Context, in Inputs) (model.Candidate, error) {
	c := model.Candidate{
		Action:       model.ActionHold,
		Parameter:    model.ParamCurveOffset,
		CurrentValue: in.CurrentOffset,
	}
	indoor := in.Snapshot.AvgIndoorTemp
	if indoor == nil {
		c.Reasoning = "no recent indoor temperature"
		c.Confidence = 0.3
		return c, nil
	}

	target := in.Band.Mid()
	correction := s.pi.UpdateAt(in.Now, target, *indoor)
	reasoning := fmt.Sprintf("indoor %.1f°C vs target %.1f°C: PI %+.2f", *indoor, target, correction)

	nudge := 0.0
	if step, ok := in.Plan.First(); ok {
		nudge = s.planWeight * step.Offset
		reasoning += fmt.Sprintf("; plan %s offset %+.1f", step.Action, step.Offset)
	}

	desired := math.Round(correction + nudge)
	desired = math.Max(-9, math.Min(9, desired)) + 0 // no negative zero

	c.Confidence = 0.7
	if in.Plan.Degraded {
		c.Confidence = 0.5
		reasoning += "; no forecast"
	}
	if in.Snapshot.COP == nil {
		c.Confidence -= 0.1
	}

	if in.CurrentOffset != nil && *in.CurrentOffset == desired {
		c.Reasoning = reasoning + fmt.Sprintf("; offset already %+.0f", desired)
		return c, nil
	}
	c.Action = model.ActionAdjust
	c.SuggestedValue = &desired
	c.Reasoning = reasoning + fmt.Sprintf("; set offset %+.0f", desired)
	return c, nil
}
