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

package events

import (
	"time"

	"heatpilot/v2/pkg/eventbus"
)

var (
	TopicReading    eventbus.Topic = "reading"
	TopicWeather    eventbus.Topic = "weather"
	TopicDecision   eventbus.Topic = "decision"
	TopicPlan       eventbus.Topic = "plan"
	TopicEvaluation eventbus.Topic = "evaluation"
)

type ReadingUpdate struct {
	DeviceID  uint
	Parameter string
	Value     float64
	Time      time.Time
}

type WeatherUpdate struct {
	TemperatureC float64
	Time         time.Time
}

// DecisionUpdate summarises one control cycle.
type DecisionUpdate struct {
	ID          string    `json:"id"`
	DeviceID    uint      `json:"device_id"`
	Time        time.Time `json:"time"`
	Action      string    `json:"action"`
	Parameter   string    `json:"parameter,omitempty"`
	FinalValue  *float64  `json:"final_value,omitempty"`
	Applied     bool      `json:"applied"`
	GuardReason string    `json:"guard_reason"`
	Reasoning   string    `json:"reasoning"`
	WriteError  string    `json:"write_error,omitempty"`
}

type PlanUpdate struct {
	DeviceID uint      `json:"device_id"`
	Time     time.Time `json:"time"`
	Steps    int       `json:"steps"`
	Degraded bool      `json:"degraded"`
	Next     string    `json:"next_action,omitempty"`
}

type EvaluationUpdate struct {
	DecisionID string  `json:"decision_id"`
	Score      float64 `json:"score"`
	Verdict    string  `json:"verdict"`
}
