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

package telemetry

import (
	"io"
	"net/http/httptest"
	"testing"

	"heatpilot/v2/pkg/eventbus"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Cycles.WithLabelValues(CycleApplied).Inc()
	m.Cycles.WithLabelValues(CycleApplied).Inc()
	m.WriteFailures.WithLabelValues("47011", "timeout").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Cycles.WithLabelValues(CycleApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WriteFailures.WithLabelValues("47011", "timeout")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `heatpilot_control_cycles_total{outcome="applied"} 2`)
}

func TestWatchBus(t *testing.T) {
	m := New()
	b := eventbus.New()
	defer b.Close()
	m.WatchBus(b)

	b.Publish("x", 1)
	b.Publish("x", 2)

	n, err := testutil.GatherAndCount(m.Registry(), "heatpilot_eventbus_published_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "heatpilot_eventbus_published_total 2")
}
