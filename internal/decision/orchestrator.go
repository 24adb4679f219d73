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

// Package decision runs the control cycle: gather state, plan, obtain a
// candidate, pass it through the safety guard, write and log the outcome.
package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"heatpilot/v2/internal/events"
	"heatpilot/v2/internal/forecast"
	"heatpilot/v2/internal/hardware"
	"heatpilot/v2/internal/metrics"
	"heatpilot/v2/internal/model"
	"heatpilot/v2/internal/planner"
	"heatpilot/v2/internal/safety"
	"heatpilot/v2/internal/store"
	"heatpilot/v2/internal/telemetry"
	"heatpilot/v2/pkg/eventbus"
	"heatpilot/v2/pkg/logger"

	"gorm.io/gorm"
)

// Hot water fallback policies.
const (
	FallbackDeviceState = "device_state"
	FallbackLastCommand = "last_command"
)

// AwayBand is the comfort band while away mode is on.
var AwayBand = Band{Min: 16, Max: 17}

// Ledger receives every logged decision.
type Ledger interface {
	PublishDecision(ctx context.Context, d model.DecisionLog) error
}

type Config struct {
	HoursBack        float64
	HorizonHours     int
	WriteTimeout     time.Duration
	HotWaterFallback string
	ZoneLeak         float64
	ZoneEfficiency   float64
}

func DefaultConfig() Config {
	return Config{
		HoursBack:        1,
		HorizonHours:     24,
		WriteTimeout:     10 * time.Second,
		HotWaterFallback: FallbackDeviceState,
		ZoneLeak:         0.05,
		ZoneEfficiency:   0.15,
	}
}

// Deps are the collaborators of the orchestrator. Temperatures, Prices, Bus,
// Metrics and Ledger are optional.
type Deps struct {
	DB           *gorm.DB
	Strategy     Strategy
	Writer       hardware.Writer
	Planner      *planner.Planner
	Temperatures forecast.TemperatureProvider
	Prices       forecast.PriceProvider
	Bus          *eventbus.Bus
	Metrics      *telemetry.Metrics
	Ledger       Ledger
}

type Orchestrator struct {
	Deps
	cfg Config
	now func() time.Time
	log *logger.Logger
}

func New(deps Deps, cfg Config) *Orchestrator {
	if deps.Planner == nil {
		deps.Planner = planner.New(planner.DefaultConfig())
	}
	if cfg.HotWaterFallback == "" {
		cfg.HotWaterFallback = FallbackDeviceState
	}
	return &Orchestrator{
		Deps: deps,
		cfg:  cfg,
		now:  time.Now,
		log:  logger.New("Orchestrator"),
	}
}

// CycleResult is what one cycle decided.
type CycleResult struct {
	Decision model.DecisionLog
	Verdict  safety.Verdict
	Plan     planner.Plan
}

// RunCycle runs one control cycle. An error means the cycle was aborted
// before any hardware write, or its log could not be stored.
func (o *Orchestrator) RunCycle(ctx context.Context) (res CycleResult, err error) {
	start := time.Now()
	outcome := telemetry.CycleAborted
	defer func() {
		if o.Metrics != nil {
			o.Metrics.Cycles.WithLabelValues(outcome).Inc()
			o.Metrics.CycleDuration.Observe(time.Since(start).Seconds())
		}
	}()

	now := o.now().UTC()
	db := o.DB.WithContext(ctx)

	// 1. device and away mode expiry
	dev, err := store.ActiveDevice(ctx, db)
	if err != nil {
		return res, fmt.Errorf("resolve device: %w", err)
	}
	if dev.AwayExpired(now) {
		if err := store.ClearAwayMode(ctx, db, dev.ID); err != nil {
			return res, fmt.Errorf("expire away mode: %w", err)
		}
		o.log.Info("away mode ended at %s, back to normal comfort", dev.AwayModeEndDate.Format(time.RFC3339))
		dev.AwayModeEnabled = false
		dev.AwayModeEndDate = nil
	}

	// 2. comfort band
	band := Band{Min: dev.TargetIndoorTempMin, Max: dev.TargetIndoorTempMax}
	if dev.AwayModeEnabled {
		band = AwayBand
	}

	// current state
	snap, err := metrics.CalculateMetricsAt(ctx, db, dev.ID, now, o.cfg.HoursBack)
	if err != nil {
		return res, err
	}
	currentOffset, err := latest(ctx, db, dev.ID, model.ParamCurveOffset)
	if err != nil {
		return res, err
	}

	plan := o.plan(ctx, dev, band, snap)
	res.Plan = plan
	if err := store.ReplaceSchedule(ctx, db, dev.ID, now.Truncate(time.Hour), plan.ToSchedule(dev.ID)); err != nil {
		return res, fmt.Errorf("store schedule: %w", err)
	}
	o.publish(events.TopicPlan, planUpdate(dev.ID, now, plan))

	// 3. candidate
	cand := o.propose(ctx, Inputs{
		Now:           now,
		Device:        *dev,
		Band:          band,
		Snapshot:      snap,
		Plan:          plan,
		CurrentOffset: currentOffset,
	})
	notes := []string{}
	if cand.Reasoning != "" {
		notes = append(notes, cand.Reasoning)
	}
	if cand.Parameter == "" {
		cand.Parameter = model.ParamCurveOffset
		cand.CurrentValue = currentOffset
	}
	if cand.CurrentValue == nil {
		if cand.CurrentValue, err = latest(ctx, db, dev.ID, cand.Parameter); err != nil {
			return res, err
		}
	}
	hotWaterExplicit := cand.HotWaterDemand != nil
	if dev.AwayModeEnabled {
		small := model.HotWaterSmall
		cand.HotWaterDemand = &small
		hotWaterExplicit = true
		notes = append(notes, "away mode: comfort band 16-17°C, hot water at minimum")
	}

	// 4. safety guard
	verdict := safety.Validate(cand, *dev, snap.AvgIndoorTemp, currentOffset)
	res.Verdict = verdict
	o.countVerdict(verdict)

	// 5. hot water demand from the fallback policy when not given
	hotWaterState, err := latest(ctx, db, dev.ID, model.ParamHotWaterDemand)
	if err != nil {
		return res, err
	}
	if !hotWaterExplicit {
		hw, note, err := o.hotWaterFallback(ctx, db, dev.ID, hotWaterState)
		if err != nil {
			return res, err
		}
		cand.HotWaterDemand = hw
		notes = append(notes, note)
	}

	rec := model.DecisionLog{
		DeviceID:               dev.ID,
		Timestamp:              now,
		CandidateAction:        cand.Action,
		CandidateParameter:     cand.Parameter,
		Action:                 verdict.Action,
		Parameter:              verdict.Parameter,
		CurrentValue:           cand.CurrentValue,
		SuggestedValue:         cand.SuggestedValue,
		GuardAccepted:          verdict.Accepted,
		GuardModified:          verdict.Modified,
		GuardReason:            verdict.Reason,
		Confidence:             cand.Confidence,
		HotWaterDemand:         cand.HotWaterDemand,
		PreviousHotWaterDemand: hotWaterState,
		TargetMin:              band.Min,
		TargetMax:              band.Max,
		AwayMode:               dev.AwayModeEnabled,
	}
	if verdict.Accepted && verdict.Action == model.ActionAdjust {
		rec.FinalValue = verdict.Adjusted
	}
	if verdict.Parameter != cand.Parameter && verdict.Parameter == model.ParamCurveOffset {
		// the guard replaced the change with a forced offset increase
		rec.CurrentValue = currentOffset
	}

	// 6. writes, each bounded by a timeout and never retried here
	var writeErrs []string
	wrote := false
	if rec.FinalValue != nil {
		if rec.CurrentValue != nil && *rec.CurrentValue == *rec.FinalValue {
			notes = append(notes, "value already set, nothing written")
		} else if err := o.write(ctx, dev.ExternalID, verdict.Parameter, *rec.FinalValue); err != nil {
			writeErrs = append(writeErrs, err.Error())
		} else {
			wrote = true
		}
	}
	if hotWaterExplicit && cand.HotWaterDemand != nil && (hotWaterState == nil || *hotWaterState != *cand.HotWaterDemand) {
		hwCand := model.Candidate{
			Action:         model.ActionAdjust,
			Parameter:      model.ParamHotWaterDemand,
			CurrentValue:   hotWaterState,
			SuggestedValue: cand.HotWaterDemand,
			Confidence:     cand.Confidence,
		}
		hwVerdict := safety.Validate(hwCand, *dev, snap.AvgIndoorTemp, currentOffset)
		if !hwVerdict.Accepted {
			notes = append(notes, "hot water change rejected: "+hwVerdict.Reason)
		} else if err := o.write(ctx, dev.ExternalID, model.ParamHotWaterDemand, *hwVerdict.Adjusted); err != nil {
			writeErrs = append(writeErrs, err.Error())
		} else {
			wrote = true
			rec.HotWaterDemand = hwVerdict.Adjusted
			rec.HotWaterApplied = true
		}
	}
	rec.Applied = wrote && len(writeErrs) == 0
	rec.WriteError = strings.Join(writeErrs, "; ")
	rec.Reasoning = strings.Join(notes, "; ")

	// 7. decision log
	if err := store.InsertDecision(ctx, db, &rec); err != nil {
		if wrote {
			o.log.Error("decision was written to the device but could not be logged: %v", err)
		}
		return res, fmt.Errorf("store decision: %w", err)
	}
	res.Decision = rec

	switch {
	case len(writeErrs) > 0:
		outcome = telemetry.CycleWriteFailed
	case !verdict.Accepted:
		outcome = telemetry.CycleRejected
	case wrote:
		outcome = telemetry.CycleApplied
	default:
		outcome = telemetry.CycleHeld
	}

	o.log.Info("%s %s -> %s (guard: %s)", rec.Action, rec.Parameter, fmtValue(rec.FinalValue), verdict.Reason)
	o.publish(events.TopicDecision, decisionUpdate(rec))
	if o.Ledger != nil {
		if err := o.Ledger.PublishDecision(ctx, rec); err != nil {
			o.log.Warn("ledger: %v", err)
		}
	}
	return res, nil
}

func (o *Orchestrator) plan(ctx context.Context, dev *model.Device, band Band, snap metrics.Snapshot) planner.Plan {
	if snap.AvgIndoorTemp == nil {
		return planner.Plan{Steps: []planner.Step{}, Degraded: true, Reason: "indoor temperature unknown"}
	}
	var fc []planner.ForecastPoint
	if o.Temperatures != nil {
		fc = o.Temperatures.TemperatureForecast(ctx, o.cfg.HorizonHours)
	}
	state := planner.State{
		Zones: []planner.Zone{{
			Name:       "house",
			Temp:       *snap.AvgIndoorTemp,
			Leak:       o.cfg.ZoneLeak,
			Efficiency: o.cfg.ZoneEfficiency,
			MinTemp:    band.Min,
			MaxTemp:    band.Max,
		}},
	}
	if snap.DegreeMinutes != nil {
		state.DegreeMinutes = *snap.DegreeMinutes
	}
	return o.Planner.Simulate(state, fc, forecast.Horizon(ctx, o.Prices))
}

// propose asks the strategy for a candidate and degrades to a hold when it
// fails or returns something malformed.
func (o *Orchestrator) propose(ctx context.Context, in Inputs) (c model.Candidate) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("strategy panic: %v", r)
			c = model.Hold(fmt.Sprintf("strategy failed: %v", r))
		}
	}()
	if o.Strategy == nil {
		return model.Hold("no strategy configured")
	}
	c, err := o.Strategy.Propose(ctx, in)
	if err != nil {
		o.log.Warn("strategy: %v", err)
		return model.Hold(fmt.Sprintf("strategy unavailable: %v", err))
	}
	if err := c.Validate(); err != nil {
		o.log.Warn("strategy: %v", err)
		return model.Hold(err.Error())
	}
	return c
}

func (o *Orchestrator) hotWaterFallback(ctx context.Context, db *gorm.DB, deviceID uint, state *float64) (*float64, string, error) {
	switch o.cfg.HotWaterFallback {
	case FallbackLastCommand:
		v, ok, err := store.LastHotWaterCommand(ctx, db, deviceID)
		if err != nil {
			return nil, "", fmt.Errorf("last hot water command: %w", err)
		}
		if !ok {
			return nil, "hot water demand unknown (no previous command)", nil
		}
		return &v, fmt.Sprintf("hot water demand %.0f from last command", v), nil
	default:
		if state == nil {
			return nil, "hot water demand unknown (no device reading)", nil
		}
		return state, fmt.Sprintf("hot water demand %.0f from device state", *state), nil
	}
}

func (o *Orchestrator) write(ctx context.Context, deviceID, code string, value float64) error {
	if o.Writer == nil {
		return &hardware.WriteError{Code: code, Err: errors.New("no hardware writer configured")}
	}
	wctx, cancel := context.WithTimeout(ctx, o.cfg.WriteTimeout)
	defer cancel()

	err := o.Writer.SetPointValue(wctx, deviceID, code, value)
	if err == nil {
		return nil
	}
	var we *hardware.WriteError
	if !errors.As(err, &we) {
		we = &hardware.WriteError{Code: code, Err: err}
		if errors.Is(err, context.DeadlineExceeded) {
			we.Timeout = true
		}
	}
	if o.Metrics != nil {
		kind := "error"
		switch {
		case we.Timeout:
			kind = "timeout"
		case we.Status != 0:
			kind = "status"
		}
		o.Metrics.WriteFailures.WithLabelValues(code, kind).Inc()
	}
	o.log.Error("write %s=%v failed: %v", code, value, we)
	return we
}

func (o *Orchestrator) countVerdict(v safety.Verdict) {
	if o.Metrics == nil {
		return
	}
	label := telemetry.GuardAccepted
	switch {
	case !v.Accepted:
		label = telemetry.GuardRejected
	case v.Modified:
		label = telemetry.GuardModified
	}
	o.Metrics.GuardVerdicts.WithLabelValues(label).Inc()
}

func (o *Orchestrator) publish(topic eventbus.Topic, ev eventbus.Event) {
	if o.Bus != nil {
		o.Bus.Publish(topic, ev)
	}
}

func latest(ctx context.Context, db *gorm.DB, deviceID uint, code string) (*float64, error) {
	if code == "" {
		return nil, nil
	}
	v, ok, err := metrics.GetLatestValue(ctx, db, deviceID, code)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

func decisionUpdate(d model.DecisionLog) events.DecisionUpdate {
	return events.DecisionUpdate{
		ID:          d.ID,
		DeviceID:    d.DeviceID,
		Time:        d.Timestamp,
		Action:      d.Action,
		Parameter:   d.Parameter,
		FinalValue:  d.FinalValue,
		Applied:     d.Applied,
		GuardReason: d.GuardReason,
		Reasoning:   d.Reasoning,
		WriteError:  d.WriteError,
	}
}

func planUpdate(deviceID uint, now time.Time, p planner.Plan) events.PlanUpdate {
	u := events.PlanUpdate{DeviceID: deviceID, Time: now, Steps: len(p.Steps), Degraded: p.Degraded}
	if first, ok := p.First(); ok {
		u.Next = first.Action
	}
	return u
}

func fmtValue(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}
