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
	"time"

	"heatpilot/v2/internal/planner"
)

// Tariff is a time-of-use price table: Peak between PeakStart and PeakEnd
// (local hours, end exclusive), OffPeak otherwise.
type Tariff struct {
	Peak      float64
	OffPeak   float64
	PeakStart int
	PeakEnd   int
	Location  *time.Location

	now func() time.Time
}

func NewTariff(peak, offPeak float64, peakStart, peakEnd int, loc *time.Location) *Tariff {
	if loc == nil {
		loc = time.Local
	}
	return &Tariff{
		Peak:      peak,
		OffPeak:   offPeak,
		PeakStart: peakStart,
		PeakEnd:   peakEnd,
		Location:  loc,
		now:       time.Now,
	}
}

func (t *Tariff) priceAt(ts time.Time) float64 {
	h := ts.In(t.Location).Hour()
	peak := false
	if t.PeakStart <= t.PeakEnd {
		peak = h >= t.PeakStart && h < t.PeakEnd
	} else {
		// window wraps midnight
		peak = h >= t.PeakStart || h < t.PeakEnd
	}
	if peak {
		return t.Peak
	}
	return t.OffPeak
}

func (t *Tariff) CurrentPrice(ctx context.Context) (float64, bool) {
	return t.priceAt(t.now()), true
}

func (t *Tariff) PricesToday(ctx context.Context) []planner.PricePoint {
	return t.day(t.now())
}

func (t *Tariff) PricesTomorrow(ctx context.Context) []planner.PricePoint {
	return t.day(t.now().In(t.Location).AddDate(0, 0, 1))
}

// day returns hourly prices for the local calendar day containing ts.
func (t *Tariff) day(ts time.Time) []planner.PricePoint {
	local := ts.In(t.Location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, t.Location)
	end := start.AddDate(0, 0, 1)
	points := make([]planner.PricePoint, 0, 25)
	for h := start; h.Before(end); h = h.Add(time.Hour) {
		points = append(points, planner.PricePoint{Timestamp: h.UTC(), Price: t.priceAt(h)})
	}
	return points
}
