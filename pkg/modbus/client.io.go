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

package modbus

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// ReadValue reads a register by name and decodes it.
//   - float32 for float32 registers and for scaled int16/uint16 registers
//   - int16 / uint16 for unscaled integer registers
//   - bool for bool registers
func (c *Client) ReadValue(ctx context.Context, name string) (any, error) {
	regDef, ok := c.config.Registers[name]
	if !ok {
		return nil, fmt.Errorf("register %q not configured", name)
	}

	nregisters, err := registerCount(regDef.DataType)
	if err != nil {
		return nil, fmt.Errorf("register %q: %w", name, err)
	}

	raw, err := c.ReadRegisters(ctx, regDef.Address, nregisters)
	if err != nil {
		return nil, fmt.Errorf("register read failed for %s: %w", name, err)
	}
	return Decode(regDef, raw)
}

// Decode converts raw register bytes according to the register definition.
func Decode(regDef RegisterDef, raw []byte) (any, error) {
	nregisters, err := registerCount(regDef.DataType)
	if err != nil {
		return nil, err
	}
	if len(raw) < int(nregisters*2) {
		return nil, fmt.Errorf("insufficient data: got %d bytes, want %d", len(raw), nregisters*2)
	}

	var valf64 float64
	switch regDef.DataType {
	case "float32":
		valf64 = float64(math.Float32frombits(binary.BigEndian.Uint32(raw)))
		if regDef.Scale == 0 {
			return float32(valf64), nil
		}
	case "int16":
		valf64 = float64(int16(binary.BigEndian.Uint16(raw)))
		if regDef.Scale == 0 {
			return int16(valf64), nil
		}
	case "uint16":
		valf64 = float64(binary.BigEndian.Uint16(raw))
		if regDef.Scale == 0 {
			return uint16(valf64), nil
		}
	case "bool", "binary":
		return binary.BigEndian.Uint16(raw) != 0, nil
	}

	return float32(valf64*regDef.Scale + regDef.Offset), nil
}

// WriteValue encodes value for the named register and writes it.
func (c *Client) WriteValue(ctx context.Context, name string, value any) error {
	regDef, ok := c.config.Registers[name]
	if !ok {
		return fmt.Errorf("register %q not configured", name)
	}
	if !regDef.Writable {
		return fmt.Errorf("register %q is not writable", name)
	}

	raw, nregisters, err := Encode(regDef, value)
	if err != nil {
		return fmt.Errorf("register %q: %w", name, err)
	}

	c.log.Info("WriteRegister '%s' <- %v", name, value)
	if err := c.WriteRegisters(ctx, regDef.Address, nregisters, raw); err != nil {
		return fmt.Errorf("failed to write register %q: %w", name, err)
	}
	return nil
}

// Encode is the inverse of Decode.
func Encode(regDef RegisterDef, value any) ([]byte, uint16, error) {
	valf64, err := ToFloat64(value)
	if err != nil {
		return nil, 0, err
	}
	if regDef.Scale != 0 {
		valf64 = (valf64 - regDef.Offset) / regDef.Scale
	}

	switch regDef.DataType {
	case "float32":
		if valf64 > math.MaxFloat32 || valf64 < -math.MaxFloat32 {
			return nil, 0, fmt.Errorf("value %v out of float32 range", valf64)
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(valf64)))
		return buf, 2, nil

	case "int16":
		ival := int64(math.Round(valf64))
		if ival < math.MinInt16 || ival > math.MaxInt16 {
			return nil, 0, fmt.Errorf("value %v out of int16 range", valf64)
		}
		return uint16ToBytes(uint16(int16(ival))), 1, nil

	case "uint16":
		ival := math.Round(valf64)
		if ival < 0 || ival > math.MaxUint16 {
			return nil, 0, fmt.Errorf("value %v out of uint16 range", valf64)
		}
		return uint16ToBytes(uint16(ival)), 1, nil

	case "bool":
		if valf64 != 0 {
			return uint16ToBytes(math.MaxUint16), 1, nil
		}
		return uint16ToBytes(0), 1, nil

	default:
		return nil, 0, fmt.Errorf("unsupported data type %q", regDef.DataType)
	}
}

func registerCount(dt string) (uint16, error) {
	switch dt {
	case "uint16", "int16", "bool", "binary":
		return 1, nil
	case "float32":
		return 2, nil
	default:
		return 0, fmt.Errorf("unsupported data type %q", dt)
	}
}

func uint16ToBytes(v uint16) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	return buf
}

// ToFloat64 converts any numeric or bool register value to float64.
func ToFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case bool:
		if n {
			return 1.0, nil
		}
		return 0.0, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
}
