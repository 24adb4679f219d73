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
	"fmt"
	"time"

	"heatpilot/v2/internal/model"

	"gorm.io/gorm"
)

// EnsureDevice creates the device if its external id is unknown and loads it otherwise.
func EnsureDevice(ctx context.Context, db *gorm.DB, d *model.Device) error {
	return db.WithContext(ctx).
		Where(model.Device{ExternalID: d.ExternalID}).
		FirstOrCreate(d).Error
}

// GetDevice returns ErrNoDevice if id does not exist.
func GetDevice(ctx context.Context, db *gorm.DB, id uint) (*model.Device, error) {
	var d model.Device
	err := db.WithContext(ctx).Take(&d, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("device %d: %w", id, ErrNoDevice)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ActiveDevice returns the first registered device.
func ActiveDevice(ctx context.Context, db *gorm.DB) (*model.Device, error) {
	var d model.Device
	err := db.WithContext(ctx).Order("id asc").Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoDevice
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func ListDevices(ctx context.Context, db *gorm.DB) ([]model.Device, error) {
	devices := []model.Device{}
	err := db.WithContext(ctx).Order("id asc").Find(&devices).Error
	return devices, err
}

// ComfortSettings are the user-editable fields of a device.
type ComfortSettings struct {
	MinIndoorTemp       float64
	TargetIndoorTempMin float64
	TargetIndoorTempMax float64
}

func UpdateComfort(ctx context.Context, db *gorm.DB, id uint, s ComfortSettings) error {
	if s.TargetIndoorTempMin > s.TargetIndoorTempMax {
		return fmt.Errorf("target min %.1f above target max %.1f", s.TargetIndoorTempMin, s.TargetIndoorTempMax)
	}
	res := db.WithContext(ctx).Model(&model.Device{}).Where("id = ?", id).Updates(map[string]any{
		"min_indoor_temp":        s.MinIndoorTemp,
		"target_indoor_temp_min": s.TargetIndoorTempMin,
		"target_indoor_temp_max": s.TargetIndoorTempMax,
	})
	return affected(res, id)
}

// SetAwayMode enables away mode until end, or indefinitely when end is nil.
func SetAwayMode(ctx context.Context, db *gorm.DB, id uint, end *time.Time) error {
	var endUTC *time.Time
	if end != nil {
		t := utc(*end)
		endUTC = &t
	}
	res := db.WithContext(ctx).Model(&model.Device{}).Where("id = ?", id).Updates(map[string]any{
		"away_mode_enabled":  true,
		"away_mode_end_date": endUTC,
	})
	return affected(res, id)
}

// ClearAwayMode disables away mode and removes its end date.
func ClearAwayMode(ctx context.Context, db *gorm.DB, id uint) error {
	res := db.WithContext(ctx).Model(&model.Device{}).Where("id = ?", id).Updates(map[string]any{
		"away_mode_enabled":  false,
		"away_mode_end_date": nil,
	})
	return affected(res, id)
}

func SetConnectionState(ctx context.Context, db *gorm.DB, id uint, state string) error {
	res := db.WithContext(ctx).Model(&model.Device{}).Where("id = ?", id).Update("connection_state", state)
	return affected(res, id)
}

func affected(res *gorm.DB, id uint) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("device %d: %w", id, ErrNoDevice)
	}
	return nil
}
