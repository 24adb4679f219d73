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

package forecast

import (
	"context"
	"testing"
	"time"

	"heatpilot/v2/internal/events"
	"heatpilot/v2/internal/model"
	"heatpilot/v2/internal/store/storetest"
	"heatpilot/v2/pkg/eventbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTariff(t *testing.T) {
	tf := NewTariff(0.40, 0.10, 7, 22, time.UTC)
	tf.now = func() time.Time { return time.Date(2025, 1, 10, 8, 30, 0, 0, time.UTC) }
	ctx := context.Background()

	price, ok := tf.CurrentPrice(ctx)
	require.True(t, ok)
	assert.Equal(t, 0.40, price)

	today := tf.PricesToday(ctx)
	require.Len(t, today, 24)
	assert.Equal(t, 0.10, today[6].Price)
	assert.Equal(t, 0.40, today[7].Price)
	assert.Equal(t, 0.10, today[22].Price)

	tomorrow := tf.PricesTomorrow(ctx)
	require.Len(t, tomorrow, 24)
	assert.Equal(t, 11, tomorrow[0].Timestamp.Day())
	assert.Len(t, Horizon(ctx, tf), 48)
}

func TestTariffWrapsMidnight(t *testing.T) {
	tf := NewTariff(1, 0, 22, 6, time.UTC)
	assert.Equal(t, 1.0, tf.priceAt(time.Date(2025, 1, 10, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1.0, tf.priceAt(time.Date(2025, 1, 10, 2, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0.0, tf.priceAt(time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)))
}

func TestOutdoorPersistenceForecast(t *testing.T) {
	db := storetest.TempDB(t)
	dev := storetest.SeedDevice(t, db)
	storetest.SeedParameters(t, db)
	bus := eventbus.New()
	defer bus.Close()

	now := time.Date(2025, 1, 10, 12, 20, 0, 0, time.UTC)
	storetest.AddReading(t, db, dev.ID, model.ParamOutdoorTemp, now.Add(-10*time.Minute), -4)
	storetest.AddReading(t, db, dev.ID, model.ParamOutdoorTemp, now.Add(-5*time.Minute), -2)
	storetest.AddReading(t, db, dev.ID, model.ParamOutdoorTemp, now.Add(-1*time.Minute), -3)

	o := NewOutdoor(db, dev.ID, bus, time.Minute)
	o.now = func() time.Time { return now }
	ctx := context.Background()

	assert.Empty(t, o.TemperatureForecast(ctx, 6))

	require.NoError(t, o.pollOnce(ctx))
	ev, ok := bus.GetLast(events.TopicWeather)
	require.True(t, ok)
	assert.Equal(t, -3.0, ev.(events.WeatherUpdate).TemperatureC)

	fc := o.TemperatureForecast(ctx, 6)
	require.Len(t, fc, 6)
	assert.True(t, fc[0].Timestamp.Equal(time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, -3.0, fc[5].OutdoorTemp)

	o.now = func() time.Time { return now.Add(4 * time.Hour) }
	assert.Empty(t, o.TemperatureForecast(ctx, 6), "stale value gives no forecast")
}
