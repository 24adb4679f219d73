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

// Package storetest provides throwaway databases for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"heatpilot/v2/internal/model"
	"heatpilot/v2/internal/store"

	"gorm.io/gorm"
)

// TempDB opens a migrated sqlite database that is removed when the test ends.
func TempDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := store.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// SeedDevice creates a device with a 20-22 °C comfort band and a 18 °C minimum.
func SeedDevice(t testing.TB, db *gorm.DB) *model.Device {
	t.Helper()
	d := &model.Device{
		ExternalID:          "test-pump",
		ProductName:         "Test Pump",
		ConnectionState:     "connected",
		MinIndoorTemp:       18,
		TargetIndoorTempMin: 20,
		TargetIndoorTempMax: 22,
	}
	if err := store.EnsureDevice(context.Background(), db, d); err != nil {
		t.Fatalf("EnsureDevice: %v", err)
	}
	return d
}

// SeedParameters registers every known parameter code.
func SeedParameters(t testing.TB, db *gorm.DB) {
	t.Helper()
	codes := []string{
		model.ParamOutdoorTemp, model.ParamSupplyTemp, model.ParamReturnTemp,
		model.ParamIndoorTemp, model.ParamDegreeMinutes, model.ParamCurveOffset,
		model.ParamHotWaterDemand, model.ParamVentilation,
	}
	for _, code := range codes {
		info, _ := model.Lookup(code)
		p := &model.Parameter{ParameterID: code, Name: info.Name, Unit: info.Unit, Writable: info.Bounds != nil}
		if err := store.UpsertParameter(context.Background(), db, p); err != nil {
			t.Fatalf("UpsertParameter %s: %v", code, err)
		}
	}
}

// AddReading stores a reading for a parameter code.
func AddReading(t testing.TB, db *gorm.DB, deviceID uint, code string, ts time.Time, value float64) {
	t.Helper()
	ctx := context.Background()
	p, err := store.FindParameter(ctx, db, code)
	if err != nil || p == nil {
		t.Fatalf("parameter %s not seeded: %v", code, err)
	}
	_, err = store.InsertReading(ctx, db, &model.ParameterReading{
		DeviceID:    deviceID,
		ParameterID: p.ID,
		Timestamp:   ts,
		Value:       value,
	})
	if err != nil {
		t.Fatalf("InsertReading: %v", err)
	}
}
