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

package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// pollMetrics are the daemon's Prometheus metrics.
type pollMetrics struct {
	registry *prometheus.Registry

	PollTotal  prometheus.Counter
	ReadErrors *prometheus.CounterVec // labels: tag
	LastValue  *prometheus.GaugeVec   // labels: tag, node
	LastPoll   prometheus.Gauge
}

func newPollMetrics() *pollMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &pollMetrics{
		registry: reg,
		PollTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensors_poll_cycles_total",
			Help: "Completed poll cycles.",
		}),
		ReadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensors_read_errors_total",
			Help: "Failed register reads by tag.",
		}, []string{"tag"}),
		LastValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sensors_last_value",
			Help: "Most recent scaled value by tag.",
		}, []string{"tag", "node"}),
		LastPoll: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensors_last_poll_timestamp_seconds",
			Help: "Unix time of the last completed poll cycle.",
		}),
	}
	reg.MustRegister(m.PollTotal, m.ReadErrors, m.LastValue, m.LastPoll)
	return m
}

// handler serves the metrics over HTTP.
func (m *pollMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
