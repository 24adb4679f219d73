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

// Package model holds the persisted entities of the control core.
package model

import (
	"time"
)

// Parameter codes of the points the control core reads or writes.
const (
	ParamOutdoorTemp    = "40004"
	ParamSupplyTemp     = "40008"
	ParamReturnTemp     = "40012"
	ParamIndoorTemp     = "40033"
	ParamDegreeMinutes  = "40940"
	ParamCurveOffset    = "47011"
	ParamHotWaterDemand = "47041"
	ParamVentilation    = "50005"
)

// Hot water demand levels, lowest first.
const (
	HotWaterSmall  = 0.0
	HotWaterMedium = 1.0
	HotWaterLarge  = 2.0
)

// Parameter is an external data point known to the heat pump.
type Parameter struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	ParameterID string `gorm:"uniqueIndex;size:32;not null" json:"parameter_id"`
	Name        string `json:"name"`
	Unit        string `json:"unit"`
	Writable    bool   `json:"writable"`
}

// Device is a single heat pump and the occupant's comfort settings.
type Device struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	ExternalID          string     `gorm:"uniqueIndex;size:64;not null" json:"external_id"`
	ProductName         string     `json:"product_name"`
	ConnectionState     string     `json:"connection_state"`
	MinIndoorTemp       float64    `json:"min_indoor_temp_user_setting"`
	TargetIndoorTempMin float64    `json:"target_indoor_temp_min"`
	TargetIndoorTempMax float64    `json:"target_indoor_temp_max"`
	AwayModeEnabled     bool       `json:"away_mode_enabled"`
	AwayModeEndDate     *time.Time `json:"away_mode_end_date,omitempty"`
}

// AwayExpired reports whether away mode is on with an end date at or before now.
func (d *Device) AwayExpired(now time.Time) bool {
	return d.AwayModeEnabled && d.AwayModeEndDate != nil && !d.AwayModeEndDate.After(now)
}

// ParameterReading is one sample. Rows are never updated.
type ParameterReading struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	DeviceID    uint      `gorm:"uniqueIndex:ux_reading_point;not null" json:"device_id"`
	ParameterID uint      `gorm:"uniqueIndex:ux_reading_point;not null" json:"parameter_id"`
	Timestamp   time.Time `gorm:"uniqueIndex:ux_reading_point;not null" json:"timestamp"`
	Value       float64   `json:"value"`
}

// Decision actions.
const (
	ActionAdjust = "adjust"
	ActionHold   = "hold"
)

// DecisionLog is the record of one orchestrator cycle.
type DecisionLog struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	DeviceID  uint      `gorm:"index;not null" json:"device_id"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
	// proposed by the strategy, before the guard
	CandidateAction    string `json:"candidate_action"`
	CandidateParameter string `json:"candidate_parameter"`
	// applied after the guard
	Action         string   `json:"action"`
	Parameter      string   `json:"parameter"`
	CurrentValue   *float64 `json:"current_value"`
	SuggestedValue *float64 `json:"suggested_value"`
	FinalValue     *float64 `json:"final_value"`
	Applied        bool     `json:"applied"`
	GuardAccepted  bool     `json:"guard_accepted"`
	GuardModified  bool     `json:"guard_modified"`
	GuardReason    string   `json:"guard_reason"`
	Reasoning      string   `json:"reasoning"`
	Confidence     float64  `json:"confidence"`
	HotWaterDemand *float64 `json:"hot_water_demand"`
	// hot water demand before the cycle, and whether the cycle wrote a new one
	PreviousHotWaterDemand *float64 `json:"previous_hot_water_demand"`
	HotWaterApplied        bool     `json:"hot_water_applied"`
	TargetMin              float64  `json:"target_min"`
	TargetMax              float64  `json:"target_max"`
	AwayMode               bool     `json:"away_mode"`
	WriteError             string   `json:"write_error,omitempty"`
}

// Evaluation verdicts.
const (
	VerdictSuccess           = "Success"
	VerdictIneffective       = "Ineffective"
	VerdictCounterProductive = "Counter-productive"
)

// Evaluation scores a past decision against what happened afterwards.
type Evaluation struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	DecisionID    string    `gorm:"uniqueIndex;size:36;not null" json:"decision_id"`
	OutcomeScore  float64   `json:"outcome_score"`
	Verdict       string    `json:"verdict"`
	CostDelta     float64   `json:"cost_delta"`
	TempDeviation float64   `json:"temp_deviation"`
	COPDelta      float64   `json:"cop_delta"`
	EvaluatedAt   time.Time `json:"evaluated_at"`
}

// Planned actions.
const (
	PlanMustRun = "MUST_RUN"
	PlanRun     = "RUN"
	PlanRest    = "REST"
)

// PlannedHeatingSchedule is one step of the forward plan.
type PlannedHeatingSchedule struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	DeviceID            uint      `gorm:"index:ix_schedule_device_ts;not null" json:"device_id"`
	Timestamp           time.Time `gorm:"index:ix_schedule_device_ts;not null" json:"timestamp"`
	OutdoorTemp         float64   `json:"outdoor_temp"`
	Price               *float64  `json:"price"`
	SimulatedIndoorTemp float64   `json:"simulated_indoor_temp"`
	PlannedAction       string    `json:"planned_action"`
	PlannedOffset       float64   `json:"planned_offset"`
	PlannedGMValue      float64   `json:"planned_gm_value"`
}

// All lists every persisted model, in dependency order.
func All() []any {
	return []any{
		&Parameter{},
		&Device{},
		&ParameterReading{},
		&DecisionLog{},
		&Evaluation{},
		&PlannedHeatingSchedule{},
	}
}
