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
	"time"

	"heatpilot/v2/internal/model"

	"gorm.io/gorm"
)

// ReplaceSchedule deletes the device's plan from 'from' onwards and stores rows
// in its place, atomically.
func ReplaceSchedule(ctx context.Context, db *gorm.DB, deviceID uint, from time.Time, rows []model.PlannedHeatingSchedule) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("device_id = ? AND timestamp >= ?", deviceID, utc(from)).
			Delete(&model.PlannedHeatingSchedule{}).Error
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for i := range rows {
			rows[i].ID = 0
			rows[i].DeviceID = deviceID
			rows[i].Timestamp = utc(rows[i].Timestamp)
		}
		return tx.Create(&rows).Error
	})
}

// ListSchedule returns the plan from 'from' onwards, in time order.
func ListSchedule(ctx context.Context, db *gorm.DB, deviceID uint, from time.Time) ([]model.PlannedHeatingSchedule, error) {
	rows := []model.PlannedHeatingSchedule{}
	err := db.WithContext(ctx).
		Where("device_id = ? AND timestamp >= ?", deviceID, utc(from)).
		Order("timestamp asc").
		Find(&rows).Error
	return rows, err
}
