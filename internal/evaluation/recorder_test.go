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

package evaluation

import (
	"context"
	"testing"
	"time"

	"heatpilot/v2/internal/events"
	"heatpilot/v2/internal/model"
	"heatpilot/v2/internal/store"
	"heatpilot/v2/internal/store/storetest"
	"heatpilot/v2/internal/telemetry"
	"heatpilot/v2/pkg/eventbus"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var t0 = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func f64(v float64) *float64 { return &v }

func setup(t *testing.T) (*gorm.DB, *model.Device) {
	db := storetest.TempDB(t)
	dev := storetest.SeedDevice(t, db)
	storetest.SeedParameters(t, db)
	return db, dev
}

func decision(t *testing.T, db *gorm.DB, deviceID uint, current, final float64) *model.DecisionLog {
	t.Helper()
	d := &model.DecisionLog{
		DeviceID:       deviceID,
		Timestamp:      t0,
		Action:         model.ActionAdjust,
		Parameter:      model.ParamCurveOffset,
		CurrentValue:   f64(current),
		SuggestedValue: f64(final),
		FinalValue:     f64(final),
		Applied:        true,
		GuardAccepted:  true,
		TargetMin:      20,
		TargetMax:      22,
	}
	require.NoError(t, store.InsertDecision(context.Background(), db, d))
	return d
}

func indoor(t *testing.T, db *gorm.DB, deviceID uint, values ...float64) {
	for i, v := range values {
		storetest.AddReading(t, db, deviceID, model.ParamIndoorTemp, t0.Add(time.Duration(i+1)*time.Hour), v)
	}
}

func TestVerdictThresholds(t *testing.T) {
	assert.Equal(t, model.VerdictSuccess, Verdict(0.3))
	assert.Equal(t, model.VerdictIneffective, Verdict(0.29))
	assert.Equal(t, model.VerdictIneffective, Verdict(-0.1))
	assert.Equal(t, model.VerdictCounterProductive, Verdict(-0.11))
}

func TestEvaluateWithinBand(t *testing.T) {
	db, dev := setup(t)
	d := decision(t, db, dev.ID, 0, 1)
	indoor(t, db, dev.ID, 20.5, 21, 21.5)

	e, err := NewRecorder(DefaultConfig()).Evaluate(context.Background(), db, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, e.TempDeviation)
	// one step for 24h at 0.15 kWh and price 1
	assert.InDelta(t, 3.6, e.CostDelta, 1e-9)
	assert.InDelta(t, 0.6-0.3*0.72, e.OutcomeScore, 1e-4)
	assert.Equal(t, model.VerdictSuccess, e.Verdict)
	assert.Equal(t, t0.Add(24*time.Hour), e.EvaluatedAt.UTC())
}

func TestEvaluatePricesHotWaterChange(t *testing.T) {
	db, dev := setup(t)
	ctx := context.Background()
	d := &model.DecisionLog{
		DeviceID:               dev.ID,
		Timestamp:              t0,
		Action:                 model.ActionAdjust,
		Parameter:              model.ParamCurveOffset,
		CurrentValue:           f64(0),
		SuggestedValue:         f64(1),
		FinalValue:             f64(1),
		Applied:                true,
		GuardAccepted:          true,
		HotWaterDemand:         f64(model.HotWaterLarge),
		PreviousHotWaterDemand: f64(model.HotWaterMedium),
		HotWaterApplied:        true,
		TargetMin:              20,
		TargetMax:              22,
	}
	require.NoError(t, store.InsertDecision(ctx, db, d))
	indoor(t, db, dev.ID, 21)

	e, err := NewRecorder(DefaultConfig()).Evaluate(ctx, db, d.ID)
	require.NoError(t, err)
	// 3.6 for the offset step plus one hot water level for a day at 1.5 kWh
	assert.InDelta(t, 5.1, e.CostDelta, 1e-9)

	d.HotWaterApplied = false
	assert.InDelta(t, 3.6, NewRecorder(DefaultConfig()).costDelta(*d), 1e-9)
}

func TestEvaluateColdHouse(t *testing.T) {
	db, dev := setup(t)
	d := decision(t, db, dev.ID, 0, -3)
	indoor(t, db, dev.ID, 19.5, 18.5, 18)

	e, err := NewRecorder(DefaultConfig()).Evaluate(context.Background(), db, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, e.TempDeviation)
	assert.Less(t, e.CostDelta, 0.0)
	// comfort -1, cost saving capped at +1
	assert.InDelta(t, -0.6+0.3, e.OutcomeScore, 1e-4)
	assert.Equal(t, model.VerdictCounterProductive, e.Verdict)
}

func TestEvaluateNoOutcomeData(t *testing.T) {
	db, dev := setup(t)
	d := decision(t, db, dev.ID, 0, 1)

	_, err := NewRecorder(DefaultConfig()).Evaluate(context.Background(), db, d.ID)
	assert.ErrorIs(t, err, ErrNoOutcomeData)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	db, dev := setup(t)
	d := decision(t, db, dev.ID, 0, 2)
	indoor(t, db, dev.ID, 21, 22.6)
	ctx := context.Background()
	r := NewRecorder(DefaultConfig())

	first, err := r.Evaluate(ctx, db, d.ID)
	require.NoError(t, err)
	second, err := r.Evaluate(ctx, db, d.ID)
	require.NoError(t, err)

	n, err := store.CountEvaluations(ctx, db, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, first.ID, second.ID)

	stored, err := store.GetEvaluation(ctx, db, d.ID)
	require.NoError(t, err)
	assert.Equal(t, first.OutcomeScore, stored.OutcomeScore)
	assert.Equal(t, first.Verdict, stored.Verdict)
	assert.Equal(t, first.EvaluatedAt.UTC(), stored.EvaluatedAt.UTC())
}

func TestCOPDelta(t *testing.T) {
	db, dev := setup(t)
	d := decision(t, db, dev.ID, 0, 0)
	indoor(t, db, dev.ID, 21)
	add := func(ts time.Time, outdoor, supply, ret float64) {
		storetest.AddReading(t, db, dev.ID, model.ParamOutdoorTemp, ts, outdoor)
		storetest.AddReading(t, db, dev.ID, model.ParamSupplyTemp, ts, supply)
		storetest.AddReading(t, db, dev.ID, model.ParamReturnTemp, ts, ret)
	}
	add(t0.Add(-2*time.Hour), 0, 40, 36)
	add(t0.Add(2*time.Hour), 0, 35, 31)

	e, err := NewRecorder(DefaultConfig()).Evaluate(context.Background(), db, d.ID)
	require.NoError(t, err)
	assert.Greater(t, e.COPDelta, 0.0)
}

func TestServiceEvaluatesPending(t *testing.T) {
	db, dev := setup(t)
	d := decision(t, db, dev.ID, 0, 1)
	indoor(t, db, dev.ID, 21)
	recent := &model.DecisionLog{DeviceID: dev.ID, Timestamp: t0.Add(20 * time.Hour), Action: model.ActionHold}
	require.NoError(t, store.InsertDecision(context.Background(), db, recent))

	bus := eventbus.New()
	t.Cleanup(bus.Close)
	m := telemetry.New()
	s := NewService(db, NewRecorder(DefaultConfig()), 24*time.Hour, time.Hour).WithEventBus(bus).WithMetrics(m)
	s.now = func() time.Time { return t0.Add(30 * time.Hour) }

	n, err := s.EvaluatePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ev, ok := bus.GetLast(events.TopicEvaluation)
	require.True(t, ok)
	assert.Equal(t, d.ID, ev.(events.EvaluationUpdate).DecisionID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Evaluations.WithLabelValues(model.VerdictSuccess)))

	n, err = s.EvaluatePending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestServicePagesPastDecisionsWithoutData(t *testing.T) {
	db, dev := setup(t)
	ctx := context.Background()
	for i := 0; i <= batchSize; i++ {
		d := &model.DecisionLog{
			DeviceID:  dev.ID,
			Timestamp: t0.Add(-48*time.Hour - time.Duration(i)*time.Minute),
			Action:    model.ActionHold,
			TargetMin: 20,
			TargetMax: 22,
		}
		require.NoError(t, store.InsertDecision(ctx, db, d))
	}
	d := decision(t, db, dev.ID, 0, 1)
	indoor(t, db, dev.ID, 21)

	s := NewService(db, NewRecorder(DefaultConfig()), 24*time.Hour, time.Hour)
	s.now = func() time.Time { return t0.Add(30 * time.Hour) }

	n, err := s.EvaluatePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	e, err := store.GetEvaluation(ctx, db, d.ID)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, model.VerdictSuccess, e.Verdict)
}
