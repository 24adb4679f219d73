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

// Package hardware sends control values to the heat pump.
package hardware

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Writer sets one point on a device.
type Writer interface {
	SetPointValue(ctx context.Context, deviceID, code string, value float64) error
}

// WriteError reports a failed write. Status is the HTTP status when the
// vendor answered, Timeout is set when the write ran out of time.
type WriteError struct {
	Code    string
	Status  int
	Timeout bool
	Err     error
}

func (e *WriteError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("write %s: timed out", e.Code)
	case e.Status != 0:
		return fmt.Sprintf("write %s: HTTP %d", e.Code, e.Status)
	default:
		return fmt.Sprintf("write %s: %v", e.Code, e.Err)
	}
}

func (e *WriteError) Unwrap() error { return e.Err }

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
