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

// Package pictrl is a proportional-integral controller with deadband,
// integral decay and anti-windup.
package pictrl

import (
	"math"
	"sync"
	"time"

	"heatpilot/v2/pkg/logger"
)

type PIController struct {
	Kp, Ki      float64
	OutputMin   float64
	OutputMax   float64
	Deadband    float64
	DecayFactor float64 // fraction of the integral that remains after one hour, [0,1]
	AntiWindup  bool

	mu       sync.Mutex
	intErr   float64
	lastTime time.Time
	log      *logger.Logger
}

func NewPIController(kp, ki float64) *PIController {
	return &PIController{
		Kp:        kp,
		Ki:        ki,
		OutputMin: math.Inf(-1),
		OutputMax: math.Inf(1),
		log:       logger.New("PI Control"),
	}
}

// Update runs one step at the current time.
func (pi *PIController) Update(setpoint, measurement float64) float64 {
	return pi.UpdateAt(time.Now(), setpoint, measurement)
}

// UpdateAt runs one step at now. The integral accumulates error·hours, so Ki
// is per hour. The first call only applies the proportional term.
func (pi *PIController) UpdateAt(now time.Time, setpoint, measurement float64) float64 {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	dt := 0.0
	if !pi.lastTime.IsZero() && now.After(pi.lastTime) {
		dt = now.Sub(pi.lastTime).Hours()
	}
	pi.lastTime = now

	err := setpoint - measurement
	if math.Abs(err) < pi.Deadband {
		err = 0
	}

	if dt > 0 {
		pi.intErr += err * dt
		if pi.DecayFactor > 0 && pi.DecayFactor < 1.0 {
			pi.intErr *= math.Pow(pi.DecayFactor, dt)
		}
	}

	output := pi.Kp*err + pi.Ki*pi.intErr

	clamped := false
	if output > pi.OutputMax {
		output = pi.OutputMax
		clamped = true
	} else if output < pi.OutputMin {
		output = pi.OutputMin
		clamped = true
	}
	if clamped && pi.AntiWindup && dt > 0 {
		// roll back the last integral step
		pi.intErr -= err * dt
	}

	pi.log.Debug("dt=%.2fh, err=%.2f°C, intErr=%.2f, output=%.2f", dt, err, pi.intErr, output)
	return output
}

// Reset clears the integral and the time reference.
func (pi *PIController) Reset() {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	pi.intErr = 0
	pi.lastTime = time.Time{}
}

func (pi *PIController) WithOutputLimits(min, max float64) *PIController {
	pi.OutputMin = min
	pi.OutputMax = max
	return pi
}

func (pi *PIController) WithDeadband(db float64) *PIController {
	pi.Deadband = db
	return pi
}

func (pi *PIController) WithDecay(factor float64) *PIController {
	pi.DecayFactor = factor
	return pi
}

func (pi *PIController) WithAntiWindup(enabled bool) *PIController {
	pi.AntiWindup = enabled
	return pi
}
