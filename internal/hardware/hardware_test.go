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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"heatpilot/v2/pkg/modbus"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPWriterPostsPoint(t *testing.T) {
	var got pointRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewHTTPWriter(srv.URL+"/", time.Second)
	require.NoError(t, w.SetPointValue(context.Background(), "pump-1", "47011", 2))
	assert.Equal(t, "/devices/pump-1/points", path)
	assert.Equal(t, pointRequest{ParameterID: "47011", Value: 2}, got)
}

func TestHTTPWriterNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewHTTPWriter(srv.URL, time.Second).SetPointValue(context.Background(), "pump-1", "47011", 2)
	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.Equal(t, http.StatusTooManyRequests, we.Status)
	assert.Equal(t, "47011", we.Code)
	assert.False(t, we.Timeout)
}

func TestHTTPWriterTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := NewHTTPWriter(srv.URL, time.Minute).SetPointValue(ctx, "pump-1", "47011", 2)
	var we *WriteError
	require.True(t, errors.As(err, &we))
	assert.True(t, we.Timeout)
}

type fakeRegisters struct {
	writes map[string]any
	err    error
}

func (f *fakeRegisters) WriteValue(ctx context.Context, name string, value any) error {
	if f.err != nil {
		return f.err
	}
	f.writes[name] = value
	return nil
}

var registerMap = &modbus.Config{Registers: map[string]modbus.RegisterDef{
	"curve_offset":    {Address: 10, DataType: "int16", Writable: true, Parameter: "47011"},
	"hot_water_min":   {Address: 11, DataType: "uint16", Writable: true, Parameter: "47041"},
	"outdoor_air_tmp": {Address: 12, DataType: "int16", Scale: 0.1, Unit: "F", Parameter: "40004"},
	"lwt_target":      {Address: 13, DataType: "int16", Scale: 0.1, Unit: "F", Writable: true, Parameter: "40008"},
}}

func TestModbusWriter(t *testing.T) {
	regs := &fakeRegisters{writes: map[string]any{}}
	w := NewModbusWriter(regs, registerMap)
	ctx := context.Background()

	require.NoError(t, w.SetPointValue(ctx, "pump-1", "47011", -2))
	assert.Equal(t, -2.0, regs.writes["curve_offset"])

	require.NoError(t, w.SetPointValue(ctx, "pump-1", "40008", 40))
	assert.InDelta(t, 104.0, regs.writes["lwt_target"].(float64), 1e-9)

	var we *WriteError
	require.ErrorAs(t, w.SetPointValue(ctx, "pump-1", "40004", 1), &we)
	assert.Contains(t, we.Error(), "not writable")

	require.ErrorAs(t, w.SetPointValue(ctx, "pump-1", "99999", 1), &we)
	assert.Equal(t, "99999", we.Code)
}

func TestModbusWriterTimeout(t *testing.T) {
	regs := &fakeRegisters{err: context.DeadlineExceeded}
	err := NewModbusWriter(regs, registerMap).SetPointValue(context.Background(), "pump-1", "47011", 1)
	var we *WriteError
	require.ErrorAs(t, err, &we)
	assert.True(t, we.Timeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
