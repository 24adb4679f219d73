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

// Package forecast supplies the outdoor temperature and electricity price
// outlook used for planning.
package forecast

import (
	"context"

	"heatpilot/v2/internal/planner"
)

// TemperatureProvider returns an hourly outdoor temperature forecast. It
// returns an empty slice when no forecast is available.
type TemperatureProvider interface {
	TemperatureForecast(ctx context.Context, hoursAhead int) []planner.ForecastPoint
}

// PriceProvider returns electricity prices per hour.
type PriceProvider interface {
	CurrentPrice(ctx context.Context) (float64, bool)
	PricesToday(ctx context.Context) []planner.PricePoint
	PricesTomorrow(ctx context.Context) []planner.PricePoint
}

// Horizon joins today's and tomorrow's prices.
func Horizon(ctx context.Context, p PriceProvider) []planner.PricePoint {
	if p == nil {
		return nil
	}
	return append(p.PricesToday(ctx), p.PricesTomorrow(ctx)...)
}
