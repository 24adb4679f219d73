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

package store

import (
	"context"
	"errors"
	"time"

	"heatpilot/v2/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InsertDecision appends a decision log row, assigning an id if it has none.
func InsertDecision(ctx context.Context, db *gorm.DB, d *model.DecisionLog) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.Timestamp = utc(d.Timestamp)
	return db.WithContext(ctx).Create(d).Error
}

// GetDecision returns nil when id is unknown.
func GetDecision(ctx context.Context, db *gorm.DB, id string) (*model.DecisionLog, error) {
	var d model.DecisionLog
	err := db.WithContext(ctx).Where("id = ?", id).Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDecisions returns the newest decisions of a device first.
func ListDecisions(ctx context.Context, db *gorm.DB, deviceID uint, limit int) ([]model.DecisionLog, error) {
	decisions := []model.DecisionLog{}
	err := db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("timestamp desc").
		Limit(limit).
		Find(&decisions).Error
	return decisions, err
}

// LastHotWaterCommand returns the hot water demand of the newest applied
// decision that carried one.
func LastHotWaterCommand(ctx context.Context, db *gorm.DB, deviceID uint) (float64, bool, error) {
	var d model.DecisionLog
	err := db.WithContext(ctx).
		Where("device_id = ? AND applied = ? AND hot_water_demand IS NOT NULL", deviceID, true).
		Order("timestamp desc").
		Limit(1).
		Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil || d.HotWaterDemand == nil {
		return 0, false, err
	}
	return *d.HotWaterDemand, true, nil
}

// PendingEvaluation returns decisions made at or before cutoff that have no
// evaluation yet, oldest first, skipping the first offset of them.
func PendingEvaluation(ctx context.Context, db *gorm.DB, cutoff time.Time, offset, limit int) ([]model.DecisionLog, error) {
	decisions := []model.DecisionLog{}
	err := db.WithContext(ctx).
		Model(&model.DecisionLog{}).
		Select("decision_logs.*").
		Joins("LEFT JOIN evaluations ON evaluations.decision_id = decision_logs.id").
		Where("evaluations.id IS NULL AND decision_logs.timestamp <= ?", utc(cutoff)).
		Order("decision_logs.timestamp asc, decision_logs.id asc").
		Offset(offset).
		Limit(limit).
		Find(&decisions).Error
	return decisions, err
}

// UpsertEvaluation stores the evaluation of a decision, replacing an earlier one.
func UpsertEvaluation(ctx context.Context, db *gorm.DB, e *model.Evaluation) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.EvaluatedAt = utc(e.EvaluatedAt)
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "decision_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"outcome_score", "verdict", "cost_delta", "temp_deviation", "cop_delta", "evaluated_at",
			}),
		}).
		Create(e).Error
	if err != nil {
		return err
	}
	// on conflict the stored row keeps its original id
	stored, err := GetEvaluation(ctx, db, e.DecisionID)
	if err != nil {
		return err
	}
	if stored != nil {
		e.ID = stored.ID
	}
	return nil
}

// GetEvaluation returns the evaluation of a decision, or nil.
func GetEvaluation(ctx context.Context, db *gorm.DB, decisionID string) (*model.Evaluation, error) {
	var e model.Evaluation
	err := db.WithContext(ctx).Where("decision_id = ?", decisionID).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func CountEvaluations(ctx context.Context, db *gorm.DB, decisionID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&model.Evaluation{}).Where("decision_id = ?", decisionID).Count(&n).Error
	return n, err
}

// ListEvaluations returns the newest evaluations first.
func ListEvaluations(ctx context.Context, db *gorm.DB, limit int) ([]model.Evaluation, error) {
	evals := []model.Evaluation{}
	err := db.WithContext(ctx).Order("evaluated_at desc").Limit(limit).Find(&evals).Error
	return evals, err
}
