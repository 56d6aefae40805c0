// Copyright (C) 2025  aattww
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

// sensors-logger polls every register map entry on a schedule, appends
// the readings to SQLite and optionally exposes Prometheus metrics.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	serial "github.com/hootrhino/goserial"
	"go.uber.org/zap"

	"github.com/aattww/sensors/gateway"
	"github.com/aattww/sensors/modbus"
)

const ownAddress = 250

func main() {
	configPath := flag.String("config", "", "configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("daemon failed", zap.Error(err))
	}
}

func run(cfg *Config, logger *zap.Logger) error {
	mapFile, err := os.Open(cfg.Poll.RegisterMap)
	if err != nil {
		return fmt.Errorf("open register map: %w", err)
	}
	registers, err := gateway.LoadRegisterMap(mapFile)
	mapFile.Close()
	if err != nil {
		return err
	}
	if len(registers) == 0 {
		return fmt.Errorf("register map %s has no entries", cfg.Poll.RegisterMap)
	}

	handle, err := serial.Open(&serial.Config{
		Address:  cfg.Serial.Port,
		BaudRate: cfg.Serial.Baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", cfg.Serial.Port, err)
	}

	port := modbus.NewSerialPort(handle, uint32(cfg.Serial.Baud))
	defer port.Close()
	client := gateway.NewClient(modbus.New(port, uint32(cfg.Serial.Baud), ownAddress))

	db, err := openStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	metrics := newPollMetrics()
	if cfg.Metrics.Enable {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("polling started",
		zap.String("port", cfg.Serial.Port),
		zap.Int("baud", cfg.Serial.Baud),
		zap.Int("registers", len(registers)),
		zap.Duration("interval", cfg.Poll.Interval))

	ticker := time.NewTicker(cfg.Poll.Interval)
	defer ticker.Stop()

	// First cycle right away instead of one interval in.
	pollOnce(ctx, cfg, logger, client, registers, db, metrics)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-ticker.C:
			pollOnce(ctx, cfg, logger, client, registers, db, metrics)
		}
	}
}

// pollOnce reads every register map entry sequentially. The bus is half
// duplex with a single master, so there is nothing to parallelize.
func pollOnce(ctx context.Context, cfg *Config, logger *zap.Logger, client *gateway.Client, registers []gateway.Register, db *store, metrics *pollMetrics) {
	var cycle []gateway.Reading
	for _, reg := range registers {
		if ctx.Err() != nil {
			return
		}

		readCtx, cancel := context.WithTimeout(ctx, cfg.Poll.Timeout)
		readings, err := client.Read(readCtx, reg)
		cancel()
		if err != nil {
			metrics.ReadErrors.WithLabelValues(reg.Tag).Inc()
			logger.Warn("read failed", zap.String("tag", reg.Tag), zap.Error(err))
			continue
		}

		for _, r := range readings {
			metrics.LastValue.WithLabelValues(r.Tag, strconv.Itoa(int(r.Node))).Set(r.Value)
			logger.Debug("read", zap.String("tag", r.Tag), zap.Float64("value", r.Value))
		}
		cycle = append(cycle, readings...)
	}

	if err := db.saveReadings(ctx, cycle); err != nil {
		logger.Error("persist failed", zap.Error(err))
		return
	}

	metrics.PollTotal.Inc()
	metrics.LastPoll.SetToCurrentTime()
	logger.Info("poll cycle done", zap.Int("readings", len(cycle)))
}
