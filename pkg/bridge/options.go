// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"time"

	"github.com/Thermoquad/dxbridge/pkg/dxl"
	"go.uber.org/zap"
)

// DefaultBusBaud is the bus rate the bridge assumes when none is configured
const DefaultBusBaud = 1000000

// Config holds the bridge configuration.
type Config struct {
	// BusTimeout bounds a single device query
	BusTimeout time.Duration

	// HostPacketTimeout bounds a partial host packet
	HostPacketTimeout time.Duration

	// MaxTargets caps the id list of an aggregated read (at most 10)
	MaxTargets int

	// PositionRegister is the control table address read by aggregated reads
	PositionRegister uint8

	// IdleInterval is how long Run sleeps after a poll that moved no bytes
	IdleInterval time.Duration

	// Logger receives diagnostics; never consulted inside a bus wait
	Logger *zap.Logger
}

// BusTimeout derives the per-query deadline from the bus bit rate: the
// time to move 10 million bits at baud, which covers a worst case packet
// in both directions plus device turnaround. Never less than 1ms.
func BusTimeout(baud int) time.Duration {
	if baud <= 0 {
		baud = DefaultBusBaud
	}
	ms := 10000000 / baud
	if ms < 1 {
		ms = 1
	}
	return time.Duration(ms) * time.Millisecond
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		BusTimeout:        BusTimeout(DefaultBusBaud),
		HostPacketTimeout: dxl.HostPacketTimeout,
		MaxTargets:        dxl.MaxSyncReadTargets,
		PositionRegister:  dxl.AddrPresentPosition,
		IdleInterval:      200 * time.Microsecond,
		Logger:            zap.NewNop(),
	}
}

// Option is a functional option for configuring the Bridge.
type Option func(*Config)

// WithBusTimeout sets the per-query deadline. Zero keeps the default.
func WithBusTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.BusTimeout = timeout
		}
	}
}

// WithBusBaud derives the per-query deadline from the bus bit rate.
func WithBusBaud(baud int) Option {
	return func(c *Config) {
		c.BusTimeout = BusTimeout(baud)
	}
}

// WithHostPacketTimeout sets how long a partial host packet may stall.
func WithHostPacketTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.HostPacketTimeout = timeout
		}
	}
}

// WithMaxTargets lowers the aggregated read target limit.
// Values outside 1..10 are ignored.
func WithMaxTargets(n int) Option {
	return func(c *Config) {
		if n > 0 && n <= dxl.MaxSyncReadTargets {
			c.MaxTargets = n
		}
	}
}

// WithPositionRegister sets the register read by aggregated reads.
func WithPositionRegister(addr uint8) Option {
	return func(c *Config) {
		c.PositionRegister = addr
	}
}

// WithIdleInterval sets the sleep between polls that moved no bytes.
func WithIdleInterval(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.IdleInterval = d
		}
	}
}

// WithLogger attaches a diagnostic sink.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}
