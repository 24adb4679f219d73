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

package hardware

import (
	"context"

	"heatpilot/v2/pkg/logger"
)

// DryRunWriter logs writes without touching hardware.
type DryRunWriter struct {
	log *logger.Logger
}

func NewDryRunWriter() *DryRunWriter {
	return &DryRunWriter{log: logger.New("DryRun")}
}

func (w *DryRunWriter) SetPointValue(ctx context.Context, deviceID, code string, value float64) error {
	w.log.Info("would write %s/%s <- %v", deviceID, code, value)
	return nil
}
