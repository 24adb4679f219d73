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

package pictrl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

func TestProportionalOnFirstCall(t *testing.T) {
	pi := NewPIController(2, 1)
	assert.Equal(t, 2.0, pi.UpdateAt(t0, 21, 20))
}

func TestIntegralAccumulatesPerHour(t *testing.T) {
	pi := NewPIController(0, 1)
	pi.UpdateAt(t0, 21, 20)
	assert.InDelta(t, 2.0, pi.UpdateAt(t0.Add(2*time.Hour), 21, 20), 1e-9)
}

func TestDeadband(t *testing.T) {
	pi := NewPIController(1, 1).WithDeadband(0.3)
	assert.Equal(t, 0.0, pi.UpdateAt(t0, 21, 20.8))
}

func TestClampAndAntiWindup(t *testing.T) {
	pi := NewPIController(1, 1).WithOutputLimits(-3, 3).WithAntiWindup(true)
	pi.UpdateAt(t0, 25, 20)
	assert.Equal(t, 3.0, pi.UpdateAt(t0.Add(time.Hour), 25, 20))
	// integral was rolled back, so a small error is not dominated by windup
	assert.InDelta(t, 1.0, pi.UpdateAt(t0.Add(2*time.Hour), 20.5, 20), 1e-9)
}

func TestReset(t *testing.T) {
	pi := NewPIController(0, 1)
	pi.UpdateAt(t0, 21, 20)
	pi.UpdateAt(t0.Add(time.Hour), 21, 20)
	pi.Reset()
	assert.Equal(t, 0.0, pi.UpdateAt(t0.Add(2*time.Hour), 21, 20))
}
