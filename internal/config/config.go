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

// Package config loads the service configuration from a file, the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "HEATPILOT"

type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type DeviceConfig struct {
	ExternalID          string  `mapstructure:"external_id"`
	ProductName         string  `mapstructure:"product_name"`
	MinIndoorTemp       float64 `mapstructure:"min_indoor_temp"`
	TargetIndoorTempMin float64 `mapstructure:"target_indoor_temp_min"`
	TargetIndoorTempMax float64 `mapstructure:"target_indoor_temp_max"`
}

type ModbusConfig struct {
	// RegistersFile is the YAML register map.
	RegistersFile string `mapstructure:"registers_file"`
}

type HardwareConfig struct {
	// Mode is "modbus", "http" or "dryrun".
	Mode           string `mapstructure:"mode"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type DecisionConfig struct {
	IntervalSeconds     int     `mapstructure:"interval_seconds"`
	HoursBack           float64 `mapstructure:"hours_back"`
	HorizonHours        int     `mapstructure:"horizon_hours"`
	WriteTimeoutSeconds int     `mapstructure:"write_timeout_seconds"`
	HotWaterFallback    string  `mapstructure:"hot_water_fallback"`
}

type EvaluationConfig struct {
	DelayHours      int     `mapstructure:"delay_hours"`
	HorizonHours    int     `mapstructure:"horizon_hours"`
	IntervalSeconds int     `mapstructure:"interval_seconds"`
	PricePerKWh     float64 `mapstructure:"price_per_kwh"`
}

type TariffConfig struct {
	Peak          float64 `mapstructure:"peak"`
	OffPeak       float64 `mapstructure:"off_peak"`
	PeakStartHour int     `mapstructure:"peak_start_hour"`
	PeakEndHour   int     `mapstructure:"peak_end_hour"`
	Timezone      string  `mapstructure:"timezone"`
}

type OutdoorConfig struct {
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds"`
}

type LedgerConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	Acks    int      `mapstructure:"acks"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Device     DeviceConfig     `mapstructure:"device"`
	Modbus     ModbusConfig     `mapstructure:"modbus"`
	Hardware   HardwareConfig   `mapstructure:"hardware"`
	Decision   DecisionConfig   `mapstructure:"decision"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
	Tariff     TariffConfig     `mapstructure:"tariff"`
	Outdoor    OutdoorConfig    `mapstructure:"outdoor"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
}

var defaults = map[string]any{
	"http.addr": ":8080",

	"database.driver": "sqlite",
	"database.dsn":    "heatpilot.db",

	"device.external_id":            "heatpump",
	"device.product_name":           "",
	"device.min_indoor_temp":        18.0,
	"device.target_indoor_temp_min": 20.5,
	"device.target_indoor_temp_max": 21.5,

	"modbus.registers_file": "registers.yaml",

	"hardware.mode":            "modbus",
	"hardware.base_url":        "",
	"hardware.timeout_seconds": 10,

	"decision.interval_seconds":      900,
	"decision.hours_back":            1.0,
	"decision.horizon_hours":         24,
	"decision.write_timeout_seconds": 10,
	"decision.hot_water_fallback":    "device_state",

	"evaluation.delay_hours":      24,
	"evaluation.horizon_hours":    24,
	"evaluation.interval_seconds": 3600,
	"evaluation.price_per_kwh":    1.0,

	"tariff.peak":            0.0,
	"tariff.off_peak":        0.0,
	"tariff.peak_start_hour": 7,
	"tariff.peak_end_hour":   22,
	"tariff.timezone":        "Local",

	"outdoor.poll_interval_seconds": 60,

	"ledger.enabled": false,
	"ledger.brokers": []string{},
	"ledger.topic":   "heatpilot.ledger",
	"ledger.acks":    1,
}

// Load reads the config file at path (JSON or YAML, optional when empty),
// then applies HEATPILOT_<SECTION>_<KEY> environment overrides. Variables
// from a .env file in the working directory are loaded first and never
// replace ones already set.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver %q: want sqlite or postgres", c.Database.Driver)
	}
	switch c.Hardware.Mode {
	case "modbus", "dryrun":
	case "http":
		if c.Hardware.BaseURL == "" {
			return errors.New("hardware.base_url is required in http mode")
		}
	default:
		return fmt.Errorf("hardware.mode %q: want modbus, http or dryrun", c.Hardware.Mode)
	}
	switch c.Decision.HotWaterFallback {
	case "device_state", "last_command":
	default:
		return fmt.Errorf("decision.hot_water_fallback %q: want device_state or last_command", c.Decision.HotWaterFallback)
	}
	if c.Device.TargetIndoorTempMin > c.Device.TargetIndoorTempMax {
		return errors.New("device target band is inverted")
	}
	if c.Ledger.Enabled && (len(c.Ledger.Brokers) == 0 || c.Ledger.Topic == "") {
		return errors.New("ledger needs brokers and a topic when enabled")
	}
	if c.Tariff.PeakStartHour < 0 || c.Tariff.PeakStartHour > 23 || c.Tariff.PeakEndHour < 0 || c.Tariff.PeakEndHour > 24 {
		return errors.New("tariff peak hours out of range")
	}
	return nil
}

// Location resolves the tariff timezone.
func (t TariffConfig) Location() (*time.Location, error) {
	if t.Timezone == "" || t.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(t.Timezone)
}

// TariffEnabled reports whether any tariff price is configured.
func (t TariffConfig) TariffEnabled() bool {
	return t.Peak != 0 || t.OffPeak != 0
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (d DecisionConfig) Interval() time.Duration     { return seconds(d.IntervalSeconds) }
func (d DecisionConfig) WriteTimeout() time.Duration { return seconds(d.WriteTimeoutSeconds) }
func (e EvaluationConfig) Interval() time.Duration   { return seconds(e.IntervalSeconds) }
func (e EvaluationConfig) Delay() time.Duration      { return time.Duration(e.DelayHours) * time.Hour }
func (e EvaluationConfig) Horizon() time.Duration    { return time.Duration(e.HorizonHours) * time.Hour }
func (h HardwareConfig) Timeout() time.Duration      { return seconds(h.TimeoutSeconds) }
func (o OutdoorConfig) PollInterval() time.Duration  { return seconds(o.PollIntervalSeconds) }
