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
	"testing"
	"time"

	"heatpilot/v2/internal/metrics"
	"heatpilot/v2/internal/model"
	"heatpilot/v2/internal/planner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleStrategyRaisesWhenCold(t *testing.T) {
	s := NewRuleStrategy()
	c, err := s.Propose(context.Background(), Inputs{
		Now:           now,
		Band:          Band{Min: 20, Max: 22},
		Snapshot:      metrics.Snapshot{AvgIndoorTemp: f64(19.5)},
		Plan:          planner.Plan{Degraded: true},
		CurrentOffset: f64(0),
	})
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.Equal(t, model.ActionAdjust, c.Action)
	assert.Equal(t, model.ParamCurveOffset, c.Parameter)
	require.NotNil(t, c.SuggestedValue)
	assert.Equal(t, 2.0, *c.SuggestedValue)
}

func TestRuleStrategyFollowsPlan(t *testing.T) {
	s := NewRuleStrategy()
	plan := planner.Plan{Steps: []planner.Step{{Timestamp: now, Action: model.PlanRest, Offset: -2}}}
	c, err := s.Propose(context.Background(), Inputs{
		Now:           now,
		Band:          Band{Min: 20, Max: 22},
		Snapshot:      metrics.Snapshot{AvgIndoorTemp: f64(21)},
		Plan:          plan,
		CurrentOffset: f64(0),
	})
	require.NoError(t, err)
	assert.Equal(t, model.ActionAdjust, c.Action)
	assert.Equal(t, -1.0, *c.SuggestedValue)
	assert.Contains(t, c.Reasoning, "plan REST")
}

func TestRuleStrategyHoldsAtTarget(t *testing.T) {
	s := NewRuleStrategy()
	in := Inputs{
		Now:           now,
		Band:          Band{Min: 20, Max: 22},
		Snapshot:      metrics.Snapshot{AvgIndoorTemp: f64(21.1)},
		CurrentOffset: f64(0),
	}
	c, err := s.Propose(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, model.ActionHold, c.Action)

	in.Snapshot.AvgIndoorTemp = nil
	in.Now = now.Add(time.Hour)
	c, err = s.Propose(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, model.ActionHold, c.Action)
	assert.Contains(t, c.Reasoning, "no recent indoor")
}
