// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge implements the host-to-bus protocol bridge: a single
// cooperative poll loop that frames host packets, proxies device traffic
// onto the half-duplex bus, relays bus replies back, and executes the
// bridge's own aggregated position read.
package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/Thermoquad/dxbridge/pkg/dxl"
	"go.uber.org/zap"
)

// Bridge owns the parser state and both links. It is not safe for
// concurrent use; one goroutine drives Poll or Run.
type Bridge struct {
	host  HostLink
	bus   BusLink
	clock Clock

	cfg          Config
	busTimeoutMs uint32
	decoder      *dxl.Decoder
	stats        *Statistics
	log          *zap.Logger
}

// New creates a bridge over the given links.
func New(host HostLink, bus BusLink, clock Clock, opts ...Option) *Bridge {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	timeoutMs := uint32((cfg.BusTimeout + time.Millisecond - 1) / time.Millisecond)
	if timeoutMs == 0 {
		timeoutMs = 1
	}

	return &Bridge{
		host:         host,
		bus:          bus,
		clock:        clock,
		cfg:          cfg,
		busTimeoutMs: timeoutMs,
		decoder:      dxl.NewDecoderWithTimeout(cfg.HostPacketTimeout),
		stats:        NewStatistics(),
		log:          cfg.Logger,
	}
}

// Statistics returns the live statistics tracker
func (b *Bridge) Statistics() *Statistics {
	return b.stats
}

// Config returns the effective configuration
func (b *Bridge) Config() Config {
	return b.cfg
}

// Poll runs one loop iteration: expire a stalled host packet, drain the host
// link through the decoder, dispatching each completed packet before the
// next byte is read, then relay bus bytes if no host packet is in flight.
// It reports whether any byte moved.
func (b *Bridge) Poll() (bool, error) {
	busy := false

	if err := b.decoder.Expire(b.clock.NowMs()); err != nil {
		b.framingReset(err)
	}

	for b.host.Available() > 0 {
		c, err := b.host.ReadByte()
		if err != nil {
			return busy, err
		}
		busy = true

		packet, err := b.decoder.DecodeByte(c, b.clock.NowMs())
		if err != nil {
			b.framingReset(err)
		}
		if packet != nil {
			if err := b.Dispatch(packet); err != nil {
				return busy, err
			}
		}
	}

	if b.decoder.Idle() {
		n, err := b.relay()
		if n > 0 {
			busy = true
		}
		if err != nil {
			return busy, err
		}
	}

	return busy, nil
}

// Run polls until ctx is cancelled or a link closes. Other link errors are
// logged and the loop carries on from idle.
func (b *Bridge) Run(ctx context.Context) error {
	b.log.Info("bridge running",
		zap.Duration("bus_timeout", time.Duration(b.busTimeoutMs)*time.Millisecond),
		zap.Int("max_targets", b.cfg.MaxTargets))

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		busy, err := b.Poll()
		if err != nil {
			if errors.Is(err, ErrLinkClosed) {
				return err
			}
			b.stats.add(func(c *Counters) { c.LinkErrors++ })
			b.log.Warn("poll", zap.Error(err))
			b.decoder.Reset()
		}

		if !busy && b.cfg.IdleInterval > 0 {
			time.Sleep(b.cfg.IdleInterval)
		}
	}
}

func (b *Bridge) framingReset(err error) {
	timeout := errors.Is(err, dxl.ErrPacketTimeout)
	b.stats.add(func(c *Counters) {
		c.FramingResets++
		if timeout {
			c.PacketTimeouts++
		}
	})
	b.log.Debug("framing reset", zap.Error(err))
}
