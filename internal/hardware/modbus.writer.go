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
	"fmt"

	"heatpilot/v2/pkg/modbus"
)

// RegisterWriter is the part of the modbus client the writer needs.
type RegisterWriter interface {
	WriteValue(ctx context.Context, name string, value any) error
}

// ModbusWriter maps parameter codes onto registers of a single heat pump.
type ModbusWriter struct {
	client RegisterWriter
	config *modbus.Config
}

func NewModbusWriter(client RegisterWriter, config *modbus.Config) *ModbusWriter {
	return &ModbusWriter{client: client, config: config}
}

func (w *ModbusWriter) SetPointValue(ctx context.Context, deviceID, code string, value float64) error {
	name, reg, ok := w.config.RegisterFor(code)
	if !ok {
		return &WriteError{Code: code, Err: fmt.Errorf("no register mapped to parameter %s", code)}
	}
	if !reg.Writable {
		return &WriteError{Code: code, Err: fmt.Errorf("register %q is not writable", name)}
	}
	if err := w.client.WriteValue(ctx, name, reg.FromCelsius(value)); err != nil {
		return &WriteError{Code: code, Timeout: isTimeout(ctx, err), Err: err}
	}
	return nil
}
