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
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"heatpilot/v2/internal/events"
	"heatpilot/v2/internal/metrics"
	"heatpilot/v2/internal/model"
	"heatpilot/v2/internal/planner"
	"heatpilot/v2/pkg/eventbus"
	"heatpilot/v2/pkg/logger"
	"heatpilot/v2/pkg/service"

	"gorm.io/gorm"
)

// Entry is one history point.
type Entry struct {
	Time  time.Time `json:"time"`
	TempC float64   `json:"temp_c"`
}

// Outdoor tracks the outdoor temperature from stored readings and serves a
// persistence forecast: the recent median held constant over the horizon.
type Outdoor struct {
	db        *gorm.DB
	deviceID  uint
	eb        *eventbus.Bus
	poll      time.Duration
	threshold float64 // delta in degC that triggers save+publish
	window    time.Duration
	maxAge    time.Duration
	now       func() time.Time
	log       *logger.Logger

	mu        sync.RWMutex
	history   []Entry
	lastSaved *Entry
}

func NewOutdoor(db *gorm.DB, deviceID uint, eb *eventbus.Bus, poll time.Duration) *Outdoor {
	if poll <= 0 {
		poll = 30 * time.Second
	}
	return &Outdoor{
		db:        db,
		deviceID:  deviceID,
		eb:        eb,
		poll:      poll,
		threshold: 0.33,
		window:    15 * time.Minute,
		maxAge:    3 * time.Hour,
		now:       time.Now,
		log:       logger.New("Outdoor"),
		history:   make([]Entry, 0, 1024),
	}
}

func (w *Outdoor) Run(ctx context.Context) {
	w.log.Info("Running...")
	defer w.log.Info("Stopped")
	service.Tick(ctx, w.poll, func(ctx context.Context) {
		if err := w.pollOnce(ctx); err != nil {
			w.log.Warn("poll: %v", err)
		}
	})
}

// pollOnce reads the median outdoor temperature and saves it when it moved
// more than the threshold.
func (w *Outdoor) pollOnce(ctx context.Context) error {
	now := w.now()
	samples, err := metrics.GetReadings(ctx, w.db, w.deviceID, model.ParamOutdoorTemp, now.Add(-w.window), now)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		// no data yet, next poll tries again
		return nil
	}
	temp := median(samples)

	w.mu.Lock()
	defer w.mu.Unlock()

	shouldSave := w.lastSaved == nil
	if !shouldSave {
		delta := temp - w.lastSaved.TempC
		if delta < 0 {
			delta = -delta
		}
		shouldSave = delta >= w.threshold
	}
	if !shouldSave {
		return nil
	}

	entry := Entry{Time: now, TempC: temp}
	w.history = append(w.history, entry)
	w.lastSaved = &entry

	// prune history older than 24h
	cutoff := now.Add(-24 * time.Hour)
	idx := sort.Search(len(w.history), func(i int) bool {
		return !w.history[i].Time.Before(cutoff)
	})
	if idx > 0 {
		w.history = append([]Entry(nil), w.history[idx:]...)
	}

	if w.eb != nil {
		w.eb.Publish(events.TopicWeather, events.WeatherUpdate{
			Time:         entry.Time,
			TemperatureC: entry.TempC,
		})
	}
	return nil
}

// TemperatureForecast holds the last saved temperature for hoursAhead hourly
// steps starting at the current hour. It is empty when the last value is stale.
func (w *Outdoor) TemperatureForecast(ctx context.Context, hoursAhead int) []planner.ForecastPoint {
	last := w.LastSaved()
	now := w.now()
	if last == nil || now.Sub(last.Time) > w.maxAge || hoursAhead <= 0 {
		return []planner.ForecastPoint{}
	}
	start := now.Truncate(time.Hour)
	points := make([]planner.ForecastPoint, hoursAhead)
	for i := range points {
		points[i] = planner.ForecastPoint{
			Timestamp:   start.Add(time.Duration(i) * time.Hour),
			OutdoorTemp: last.TempC,
		}
	}
	return points
}

func median(samples []metrics.Sample) float64 {
	vals := make([]float64, len(samples))
	for i, s := range samples {
		vals[i] = s.Value
	}
	sort.Float64s(vals)
	mid := len(vals) / 2
	if len(vals)%2 == 0 {
		return (vals[mid-1] + vals[mid]) / 2
	}
	return vals[mid]
}

// ServeHTTP exposes:
//   - GET /            -> HTML chart of the last 24h
//   - GET /api/history -> JSON history
//   - GET /api/forecast?hours=N -> JSON forecast
func (w *Outdoor) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "", "/":
		rw.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = rw.Write([]byte(htmlPage))
	case "/api/history":
		writeJSON(rw, w.History())
	case "/api/forecast":
		writeJSON(rw, w.TemperatureForecast(r.Context(), 24))
	default:
		http.NotFound(rw, r)
	}
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(rw)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// LastSaved returns the last saved entry (copy) or nil if none.
func (w *Outdoor) LastSaved() *Entry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.lastSaved == nil {
		return nil
	}
	c := *w.lastSaved
	return &c
}

// History returns a copy of the current history.
func (w *Outdoor) History() []Entry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Entry, len(w.history))
	copy(out, w.history)
	return out
}

var htmlPage = `<!doctype html>
<html>
<head>
<meta charset="utf-8" />
<title>Outdoor Temperature (24h)</title>
<style>
body { font-family: system-ui, -apple-system, "Segoe UI", Roboto, "Helvetica Neue", Arial; padding: 24px }
.container { max-width: 900px; margin: 0 auto }
.card { border-radius: 8px; padding: 16px; box-shadow: 0 2px 6px rgba(0,0,0,0.08) }
</style>
</head>
<body>
<div class="container">
<h1>Outdoor Temperature (last 24h)</h1>
<div class="card">
<canvas id="chart" width="860" height="300"></canvas>
</div>
<p>Auto-updates every 30s.</p>
</div>
<script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
<script>
async function fetchData() {
  const res = await fetch('./api/history');
  const a = await res.json();
  return a.map(x => ({t: new Date(x.time), y: x.temp_c}));
}
let chart;
async function render() {
  const data = await fetchData();
  const ctx = document.getElementById('chart').getContext('2d');
  const labels = data.map(d => d.t.toLocaleTimeString());
  const values = data.map(d => d.y);
  if (!chart) {
    chart = new Chart(ctx, {
      type: 'line',
      data: { labels, datasets: [{ label: '°C', data: values, tension: 0.2 }] },
      options: { scales: { x: { display: true }, y: { beginAtZero: false } } }
    });
  } else {
    chart.data.labels = labels;
    chart.data.datasets[0].data = values;
    chart.update();
  }
}
render();
setInterval(render, 30_000);
</script>
</body>
</html>`
