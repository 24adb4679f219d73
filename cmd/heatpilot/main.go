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

package main

import (
	"context"
	"os"
	"path/filepath"

	"heatpilot/v2/internal/api"
	"heatpilot/v2/internal/config"
	"heatpilot/v2/internal/decision"
	"heatpilot/v2/internal/evaluation"
	"heatpilot/v2/internal/forecast"
	"heatpilot/v2/internal/hardware"
	"heatpilot/v2/internal/ingest"
	"heatpilot/v2/internal/ledger"
	"heatpilot/v2/internal/live"
	"heatpilot/v2/internal/model"
	"heatpilot/v2/internal/store"
	"heatpilot/v2/internal/telemetry"
	"heatpilot/v2/pkg/appctx"
	"heatpilot/v2/pkg/eventbus"
	"heatpilot/v2/pkg/logger"
	"heatpilot/v2/pkg/modbus"
	"heatpilot/v2/pkg/rootserv"
	"heatpilot/v2/pkg/service"
	"heatpilot/v2/pkg/sysmon"
)

func main() {

	rootdir := os.Getenv("PROJECT_ROOT")
	if rootdir == "" {
		rootdir = "."
	}
	inRoot := func(path string) string {
		if filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(rootdir, path)
	}

	log := logger.New("Main")
	if err := logger.Init(inRoot("var/logs/heatpilot.log")); err != nil {
		log.Fatal("init log file: %v", err)
	}

	// the config file is optional, defaults and env vars cover the rest
	confPath := inRoot("var/config/heatpilot.yaml")
	if _, err := os.Stat(confPath); err != nil {
		confPath = ""
	}
	conf, err := config.Load(confPath)
	if err != nil {
		log.Fatal("%v", err)
	}
	modbusConf, err := modbus.LoadConfig(inRoot(conf.Modbus.RegistersFile))
	if err != nil {
		log.Fatal("%v", err)
	}

	ctx, ctxCancel := appctx.New()

	dsn := conf.Database.DSN
	if conf.Database.Driver == "sqlite" {
		dsn = inRoot(dsn)
	}
	db, err := store.Open(conf.Database.Driver, dsn)
	if err != nil {
		log.Fatal("%v", err)
	}

	device := &model.Device{
		ExternalID:          conf.Device.ExternalID,
		ProductName:         conf.Device.ProductName,
		ConnectionState:     "connecting",
		MinIndoorTemp:       conf.Device.MinIndoorTemp,
		TargetIndoorTempMin: conf.Device.TargetIndoorTempMin,
		TargetIndoorTempMax: conf.Device.TargetIndoorTempMax,
	}
	if err := ingest.Seed(ctx, db, modbusConf, device); err != nil {
		log.Fatal("%v", err)
	}

	bus := eventbus.New()
	metrics := telemetry.New()
	metrics.WatchBus(bus)

	modbusClient, err := modbus.NewClient(ctx, modbusConf)
	if err != nil {
		log.Fatal("%v", err)
	}
	if err := store.SetConnectionState(ctx, db, device.ID, "connected"); err != nil {
		log.Warn("connection state: %v", err)
	}

	var writer hardware.Writer
	switch conf.Hardware.Mode {
	case "http":
		writer = hardware.NewHTTPWriter(conf.Hardware.BaseURL, conf.Hardware.Timeout())
	case "dryrun":
		writer = hardware.NewDryRunWriter()
	default:
		writer = hardware.NewModbusWriter(modbusClient, modbusConf)
	}

	var prices forecast.PriceProvider
	if conf.Tariff.TariffEnabled() {
		loc, err := conf.Tariff.Location()
		if err != nil {
			log.Fatal("tariff timezone: %v", err)
		}
		prices = forecast.NewTariff(conf.Tariff.Peak, conf.Tariff.OffPeak, conf.Tariff.PeakStartHour, conf.Tariff.PeakEndHour, loc)
	}

	var pub *ledger.Publisher
	if conf.Ledger.Enabled {
		pub, err = ledger.NewPublisher(ledger.Config{
			Brokers: conf.Ledger.Brokers,
			Topic:   conf.Ledger.Topic,
			Acks:    conf.Ledger.Acks,
		})
		if err != nil {
			log.Fatal("%v", err)
		}
	}

	// init services
	server := rootserv.New(conf.HTTP.Addr)
	sysMonitorService := sysmon.New().
		WithCheck("database", func(ctx context.Context) error { return store.Ping(db.WithContext(ctx)) })
	collectorService := ingest.NewCollector(modbusClient, modbusConf, db, device.ID, bus, metrics)
	outdoorService := forecast.NewOutdoor(db, device.ID, bus, conf.Outdoor.PollInterval())

	decisionConf := decision.DefaultConfig()
	decisionConf.HoursBack = conf.Decision.HoursBack
	decisionConf.HorizonHours = conf.Decision.HorizonHours
	decisionConf.WriteTimeout = conf.Decision.WriteTimeout()
	decisionConf.HotWaterFallback = conf.Decision.HotWaterFallback
	deps := decision.Deps{
		DB:           db,
		Strategy:     decision.NewRuleStrategy(),
		Writer:       writer,
		Temperatures: outdoorService,
		Prices:       prices,
		Bus:          bus,
		Metrics:      metrics,
	}
	if pub != nil {
		deps.Ledger = pub
	}
	decisionService := decision.NewService(decision.New(deps, decisionConf), conf.Decision.Interval())

	evalConf := evaluation.DefaultConfig()
	evalConf.Horizon = conf.Evaluation.Horizon()
	evalConf.PricePerKWh = conf.Evaluation.PricePerKWh
	evaluationService := evaluation.NewService(db, evaluation.NewRecorder(evalConf), conf.Evaluation.Delay(), conf.Evaluation.Interval()).
		WithEventBus(bus).
		WithMetrics(metrics)
	if pub != nil {
		evaluationService.WithLedger(pub)
	}
	liveService := live.NewFeed(bus)

	// attach web handler enabled services
	server.Attach("/logger", "Logger", logger.WebService())
	server.Attach("/monitor", "System Monitor", sysMonitorService)
	server.Attach("/api", "Metrics, decisions, evaluations and schedule", api.NewService(db))
	server.Attach("/ingest", "Heat pump registers", collectorService)
	server.Attach("/outdoor", "Outdoor temperature", outdoorService)
	server.Attach("/live", "Live decision feed", liveService)
	server.Handle("/metrics", "Prometheus metrics", metrics.Handler())

	services := []service.Runnable{
		collectorService,
		outdoorService,
		decisionService,
		evaluationService,
		liveService,
		server,
	}
	if pub != nil {
		services = append(services, pub)
	}

	// start runnable services
	exitCh := service.Start(ctx, ctxCancel, services)

	// waits for all services to stop
	code := <-exitCh
	bus.Close()
	modbusClient.Close()
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	logger.Close()
	os.Exit(code)
}
