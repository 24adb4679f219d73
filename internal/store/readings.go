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

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InsertReading appends a reading. A reading for the same device, parameter
// and timestamp as an existing row is ignored and inserted is false.
func InsertReading(ctx context.Context, db *gorm.DB, r *model.ParameterReading) (inserted bool, err error) {
	r.Timestamp = utc(r.Timestamp)
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(r)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// LatestReading returns the newest reading, ties broken by insertion order.
// It returns nil when there are none.
func LatestReading(ctx context.Context, db *gorm.DB, deviceID, parameterID uint) (*model.ParameterReading, error) {
	var r model.ParameterReading
	err := db.WithContext(ctx).
		Where("device_id = ? AND parameter_id = ?", deviceID, parameterID).
		Order("timestamp desc, id desc").
		Limit(1).
		Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// QueryReadings returns readings in [start, end], oldest first.
func QueryReadings(ctx context.Context, db *gorm.DB, deviceID, parameterID uint, start, end time.Time) ([]model.ParameterReading, error) {
	readings := []model.ParameterReading{}
	err := db.WithContext(ctx).
		Where("device_id = ? AND parameter_id = ?", deviceID, parameterID).
		Where("timestamp >= ? AND timestamp <= ?", utc(start), utc(end)).
		Order("timestamp asc, id asc").
		Find(&readings).Error
	if err != nil {
		return nil, err
	}
	return readings, nil
}

// UpsertParameter inserts a parameter or refreshes its descriptive fields.
func UpsertParameter(ctx context.Context, db *gorm.DB, p *model.Parameter) error {
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "parameter_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "unit", "writable"}),
		}).
		Create(p).Error
	if err != nil {
		return err
	}
	// the returned id is unreliable when the row was updated
	found, err := FindParameter(ctx, db, p.ParameterID)
	if err != nil {
		return err
	}
	if found != nil {
		p.ID = found.ID
	}
	return nil
}

// FindParameter looks a parameter up by its external code. It returns nil when unknown.
func FindParameter(ctx context.Context, db *gorm.DB, code string) (*model.Parameter, error) {
	var p model.Parameter
	err := db.WithContext(ctx).Where("parameter_id = ?", code).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func ListParameters(ctx context.Context, db *gorm.DB) ([]model.Parameter, error) {
	params := []model.Parameter{}
	err := db.WithContext(ctx).Order("parameter_id asc").Find(&params).Error
	return params, err
}
