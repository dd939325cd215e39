// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports bridge statistics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/Thermoquad/dxbridge/pkg/bridge"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dxbridge"

// NewRegistry creates a registry with the Go runtime and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the HTTP handler serving reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Source provides statistics snapshots. *bridge.Statistics satisfies it.
type Source interface {
	Snapshot() bridge.Counters
}

// Collector reads a statistics snapshot on every scrape, so the poll loop
// never touches Prometheus types.
type Collector struct {
	src Source

	hostPackets  *prometheus.Desc
	hostErrors   *prometheus.Desc
	forwarded    *prometheus.Desc
	relayedBytes *prometheus.Desc
	syncReads    *prometheus.Desc
	busQueries   *prometheus.Desc
	busErrors    *prometheus.Desc
	linkErrors   *prometheus.Desc
	uptime       *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector over src
func NewCollector(src Source) *Collector {
	return &Collector{
		src: src,
		hostPackets: prometheus.NewDesc(namespace+"_host_packets_total",
			"Completed packets received from the host.", nil, nil),
		hostErrors: prometheus.NewDesc(namespace+"_host_errors_total",
			"Host packets rejected or abandoned, by reason.", []string{"reason"}, nil),
		forwarded: prometheus.NewDesc(namespace+"_forwarded_packets_total",
			"Host packets proxied onto the bus.", nil, nil),
		relayedBytes: prometheus.NewDesc(namespace+"_relayed_bytes_total",
			"Bus bytes relayed to the host.", nil, nil),
		syncReads: prometheus.NewDesc(namespace+"_sync_reads_total",
			"Aggregated position reads, by result.", []string{"result"}, nil),
		busQueries: prometheus.NewDesc(namespace+"_bus_queries_total",
			"Single-device queries issued by the bridge.", nil, nil),
		busErrors: prometheus.NewDesc(namespace+"_bus_errors_total",
			"Failed single-device queries, by reason.", []string{"reason"}, nil),
		linkErrors: prometheus.NewDesc(namespace+"_link_errors_total",
			"Link I/O errors survived by the poll loop.", nil, nil),
		uptime: prometheus.NewDesc(namespace+"_statistics_age_seconds",
			"Seconds since the statistics were last reset.", nil, nil),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hostPackets
	ch <- c.hostErrors
	ch <- c.forwarded
	ch <- c.relayedBytes
	ch <- c.syncReads
	ch <- c.busQueries
	ch <- c.busErrors
	ch <- c.linkErrors
	ch <- c.uptime
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Snapshot()

	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	counter(c.hostPackets, s.HostPackets)
	counter(c.hostErrors, s.ChecksumErrors, "checksum")
	counter(c.hostErrors, s.FramingResets-s.PacketTimeouts, "framing")
	counter(c.hostErrors, s.PacketTimeouts, "timeout")
	counter(c.hostErrors, s.UnknownCommands, "unknown_command")
	counter(c.hostErrors, s.TooManyTargets, "too_many_targets")
	counter(c.forwarded, s.Forwarded)
	counter(c.relayedBytes, s.RelayedBytes)
	counter(c.syncReads, s.SyncReads, "ok")
	counter(c.syncReads, s.SyncReadFailures, "failed")
	counter(c.busQueries, s.BusQueries)
	counter(c.busErrors, s.BusTimeouts, "timeout")
	counter(c.busErrors, s.BusChecksums, "checksum")
	counter(c.busErrors, s.BusMalformed, "malformed")
	counter(c.linkErrors, s.LinkErrors)

	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, time.Since(s.StartTime).Seconds())
}
