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

// Package evaluation scores logged decisions once their effect can be observed.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"heatpilot/v2/internal/metrics"
	"heatpilot/v2/internal/model"
	"heatpilot/v2/internal/store"

	"gorm.io/gorm"
)

// ErrNoOutcomeData means no indoor readings exist after the decision.
var ErrNoOutcomeData = errors.New("no outcome data for decision")

// Score thresholds for the verdict.
const (
	SuccessScore     = 0.3
	IneffectiveScore = -0.1
)

type Config struct {
	// Horizon is how far after the decision the outcome is observed.
	Horizon time.Duration
	// PricePerKWh prices the estimated energy difference.
	PricePerKWh float64
	// OffsetKWhPerHour is the extra electrical energy per curve offset step and hour.
	OffsetKWhPerHour float64
	// HotWaterKWhPerDay is the extra energy per hot water demand level and day.
	HotWaterKWhPerDay float64
}

func DefaultConfig() Config {
	return Config{
		Horizon:           24 * time.Hour,
		PricePerKWh:       1.0,
		OffsetKWhPerHour:  0.15,
		HotWaterKWhPerDay: 1.5,
	}
}

// Recorder computes and stores evaluations.
type Recorder struct {
	cfg Config
}

func NewRecorder(cfg Config) *Recorder {
	if cfg.Horizon <= 0 {
		cfg.Horizon = DefaultConfig().Horizon
	}
	return &Recorder{cfg: cfg}
}

// Evaluate scores one decision and upserts the result. Running it again
// for the same decision and data yields the same row.
func (r *Recorder) Evaluate(ctx context.Context, db *gorm.DB, decisionID string) (*model.Evaluation, error) {
	d, err := store.GetDecision(ctx, db, decisionID)
	if err != nil {
		return nil, fmt.Errorf("load decision: %w", err)
	}
	if d == nil {
		return nil, fmt.Errorf("decision %s: %w", decisionID, gorm.ErrRecordNotFound)
	}
	e, err := r.Score(ctx, db, *d)
	if err != nil {
		return nil, err
	}
	if err := store.UpsertEvaluation(ctx, db, e); err != nil {
		return nil, fmt.Errorf("store evaluation: %w", err)
	}
	return e, nil
}

// Score computes the evaluation of d without storing it.
func (r *Recorder) Score(ctx context.Context, db *gorm.DB, d model.DecisionLog) (*model.Evaluation, error) {
	start := d.Timestamp
	end := start.Add(r.cfg.Horizon)

	indoor, err := metrics.GetReadings(ctx, db, d.DeviceID, model.ParamIndoorTemp, start, end)
	if err != nil {
		return nil, err
	}
	if len(indoor) == 0 {
		return nil, fmt.Errorf("decision %s: %w", d.ID, ErrNoOutcomeData)
	}
	deviation := maxExcursion(indoor, d.TargetMin, d.TargetMax)

	copDelta, err := r.copDelta(ctx, db, d.DeviceID, start, end)
	if err != nil {
		return nil, err
	}
	costDelta := r.costDelta(d)

	score := 0.6*comfortScore(deviation) + 0.3*costScore(costDelta) + 0.1*clamp(copDelta, -1, 1)
	return &model.Evaluation{
		DecisionID:    d.ID,
		OutcomeScore:  round(score, 4),
		Verdict:       Verdict(score),
		CostDelta:     round(costDelta, 4),
		TempDeviation: round(deviation, 4),
		COPDelta:      round(copDelta, 4),
		EvaluatedAt:   end,
	}, nil
}

// Verdict classifies an outcome score.
func Verdict(score float64) string {
	switch {
	case score >= SuccessScore:
		return model.VerdictSuccess
	case score >= IneffectiveScore:
		return model.VerdictIneffective
	default:
		return model.VerdictCounterProductive
	}
}

// copDelta is the mean COP over the horizon after the decision minus the mean
// over the same span before it. Zero when either side has no data.
func (r *Recorder) copDelta(ctx context.Context, db *gorm.DB, deviceID uint, start, end time.Time) (float64, error) {
	after, err := metrics.GetCOPTimeseries(ctx, db, deviceID, start, end)
	if err != nil {
		return 0, err
	}
	before, err := metrics.GetCOPTimeseries(ctx, db, deviceID, start.Add(-r.cfg.Horizon), start.Add(-time.Second))
	if err != nil {
		return 0, err
	}
	if len(after) == 0 || len(before) == 0 {
		return 0, nil
	}
	return meanCOP(after) - meanCOP(before), nil
}

// costDelta estimates the extra cost of the applied changes against leaving
// the settings untouched.
func (r *Recorder) costDelta(d model.DecisionLog) float64 {
	cost := 0.0
	if d.Applied && d.FinalValue != nil && d.CurrentValue != nil {
		cost += r.stepCost(d.Parameter, *d.FinalValue-*d.CurrentValue)
	}
	if d.HotWaterApplied && d.HotWaterDemand != nil && d.PreviousHotWaterDemand != nil {
		cost += r.stepCost(model.ParamHotWaterDemand, *d.HotWaterDemand-*d.PreviousHotWaterDemand)
	}
	return cost
}

func (r *Recorder) stepCost(code string, step float64) float64 {
	hours := r.cfg.Horizon.Hours()
	switch code {
	case model.ParamCurveOffset:
		return step * r.cfg.OffsetKWhPerHour * hours * r.cfg.PricePerKWh
	case model.ParamHotWaterDemand:
		return step * r.cfg.HotWaterKWhPerDay * hours / 24 * r.cfg.PricePerKWh
	}
	return 0
}

// maxExcursion is the largest distance of any reading outside [lo, hi].
func maxExcursion(samples []metrics.Sample, lo, hi float64) float64 {
	worst := 0.0
	for _, s := range samples {
		switch {
		case s.Value < lo:
			worst = math.Max(worst, lo-s.Value)
		case s.Value > hi:
			worst = math.Max(worst, s.Value-hi)
		}
	}
	return worst
}

// comfortScore is 1 inside the band and falls by 1 per degree outside, down to -1.
func comfortScore(deviation float64) float64 {
	return 1 - math.Min(deviation, 2)
}

// costScore maps a cost increase of 5 or more to -1 and a saving of 5 or more to 1.
func costScore(delta float64) float64 {
	return -clamp(delta/5, -1, 1)
}

func meanCOP(points []metrics.COPPoint) float64 {
	sum := 0.0
	for _, p := range points {
		sum += p.COP
	}
	return sum / float64(len(points))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
