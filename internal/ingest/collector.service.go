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

// Package ingest polls the heat pump registers and stores the readings.
package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"heatpilot/v2/internal/events"
	"heatpilot/v2/internal/model"
	"heatpilot/v2/internal/store"
	"heatpilot/v2/internal/telemetry"
	"heatpilot/v2/pkg/eventbus"
	"heatpilot/v2/pkg/logger"
	"heatpilot/v2/pkg/modbus"
	"heatpilot/v2/pkg/service"

	"gorm.io/gorm"
)

// RegisterReader is the part of the modbus client the collector needs.
type RegisterReader interface {
	ReadValue(ctx context.Context, name string) (any, error)
}

// Latest is the last poll result of one register.
type Latest struct {
	Register    string    `json:"register"`
	Parameter   string    `json:"parameter"`
	Description string    `json:"description"`
	Value       *float64  `json:"value"`
	Time        time.Time `json:"time"`
	Error       string    `json:"error,omitempty"`
	Writable    bool      `json:"writable"`
}

type Collector struct {
	reader   RegisterReader
	config   *modbus.Config
	db       *gorm.DB
	deviceID uint
	eb       *eventbus.Bus
	metrics  *telemetry.Metrics
	now      func() time.Time
	log      *logger.Logger

	mu     sync.RWMutex
	params map[string]uint // parameter code -> row id
	prev   map[string]*sample
	latest map[string]Latest
}

func NewCollector(reader RegisterReader, config *modbus.Config, db *gorm.DB, deviceID uint, eb *eventbus.Bus, m *telemetry.Metrics) *Collector {
	return &Collector{
		reader:   reader,
		config:   config,
		db:       db,
		deviceID: deviceID,
		eb:       eb,
		metrics:  m,
		now:      time.Now,
		log:      logger.New("Ingest"),
		params:   map[string]uint{},
		prev:     map[string]*sample{},
		latest:   map[string]Latest{},
	}
}

// Seed registers every mapped parameter and ensures the device exists.
func Seed(ctx context.Context, db *gorm.DB, config *modbus.Config, device *model.Device) error {
	if err := store.EnsureDevice(ctx, db, device); err != nil {
		return fmt.Errorf("ensure device: %w", err)
	}
	for name, reg := range config.Registers {
		if reg.Parameter == "" {
			continue
		}
		p := &model.Parameter{
			ParameterID: reg.Parameter,
			Name:        reg.Description,
			Writable:    reg.Writable,
			Unit:        "°C",
		}
		if info, ok := model.Lookup(reg.Parameter); ok {
			p.Unit = info.Unit
			if p.Name == "" {
				p.Name = info.Name
			}
		}
		if p.Name == "" {
			p.Name = name
		}
		if err := store.UpsertParameter(ctx, db, p); err != nil {
			return fmt.Errorf("seed parameter %s: %w", reg.Parameter, err)
		}
	}
	return nil
}

func (c *Collector) Run(ctx context.Context) {
	c.log.Info("Running...")
	defer c.log.Info("Stopped")

	grouped := make(map[string][]string)
	for name, reg := range c.config.Registers {
		if reg.Parameter == "" {
			continue
		}
		grouped[reg.Group] = append(grouped[reg.Group], name)
	}

	groupIntervals := c.config.PollGroups
	if len(groupIntervals) == 0 {
		groupIntervals = map[string]int{"default": 60}
	}

	var wg sync.WaitGroup
	for group, names := range grouped {
		sort.Strings(names)
		intervalSec, ok := groupIntervals[group]
		if !ok {
			intervalSec = groupIntervals["default"]
		}
		if intervalSec <= 0 {
			intervalSec = 60
		}
		interval := time.Duration(intervalSec) * time.Second
		c.log.Info("group %q: %d registers every %v", group, len(names), interval)
		wg.Go(func() {
			service.Tick(ctx, interval, func(ctx context.Context) {
				start := time.Now()
				n := c.Poll(ctx, names)
				c.log.Debug("group %q: stored %d/%d readings in %v", group, n, len(names), time.Since(start))
			})
		})
	}
	wg.Wait()
}

// Poll reads the named registers once and stores the plausible values. It
// returns how many new readings were stored.
func (c *Collector) Poll(ctx context.Context, names []string) int {
	stored := 0
	for _, name := range names {
		if ctx.Err() != nil {
			return stored
		}
		ok, err := c.pollRegister(ctx, name)
		if err != nil {
			c.log.Warn("%s: %v", name, err)
		}
		if ok {
			stored++
		}
	}
	return stored
}

func (c *Collector) pollRegister(ctx context.Context, name string) (bool, error) {
	reg, ok := c.config.Registers[name]
	if !ok || reg.Parameter == "" {
		return false, fmt.Errorf("register %q has no parameter mapping", name)
	}
	now := c.now().UTC().Truncate(time.Second)
	entry := Latest{Register: name, Parameter: reg.Parameter, Description: reg.Description, Time: now, Writable: reg.Writable}

	fail := func(err error) (bool, error) {
		entry.Error = err.Error()
		c.mu.Lock()
		if prev, ok := c.latest[name]; ok {
			entry.Value = prev.Value
		}
		c.latest[name] = entry
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.ReadingsRejected.WithLabelValues(reg.Parameter).Inc()
		}
		return false, err
	}

	raw, err := c.reader.ReadValue(ctx, name)
	if err != nil {
		return fail(err)
	}
	v, err := modbus.ToFloat64(raw)
	if err != nil {
		return fail(err)
	}
	v = reg.ToCelsius(v)

	c.mu.RLock()
	prev := c.prev[reg.Parameter]
	c.mu.RUnlock()
	if err := checkValue(reg.Parameter, v, prev, now); err != nil {
		return fail(fmt.Errorf("invalid value %.2f: %w", v, err))
	}

	paramID, err := c.parameterID(ctx, reg.Parameter)
	if err != nil {
		return fail(err)
	}
	inserted, err := store.InsertReading(ctx, c.db, &model.ParameterReading{
		DeviceID:    c.deviceID,
		ParameterID: paramID,
		Timestamp:   now,
		Value:       v,
	})
	if err != nil {
		return fail(fmt.Errorf("store reading: %w", err))
	}

	entry.Value = &v
	c.mu.Lock()
	c.prev[reg.Parameter] = &sample{Time: now, Value: v}
	c.latest[name] = entry
	c.mu.Unlock()

	if !inserted {
		return false, nil
	}
	if c.metrics != nil {
		c.metrics.ReadingsStored.WithLabelValues(reg.Parameter).Inc()
	}
	if c.eb != nil {
		c.eb.Publish(events.TopicReading, events.ReadingUpdate{
			DeviceID:  c.deviceID,
			Parameter: reg.Parameter,
			Value:     v,
			Time:      now,
		})
	}
	return true, nil
}

func (c *Collector) parameterID(ctx context.Context, code string) (uint, error) {
	c.mu.RLock()
	id, ok := c.params[code]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}
	p, err := store.FindParameter(ctx, c.db, code)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, fmt.Errorf("parameter %s not registered", code)
	}
	c.mu.Lock()
	c.params[code] = p.ID
	c.mu.Unlock()
	return p.ID, nil
}

// LatestAll returns the last poll result of every register.
func (c *Collector) LatestAll() map[string]Latest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Latest, len(c.latest))
	for k, v := range c.latest {
		out[k] = v
	}
	return out
}
