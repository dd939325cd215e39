// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"

	"github.com/Thermoquad/dxbridge/pkg/dxl"
	"go.uber.org/zap"
)

var invalidCommandReply = dxl.InvalidCommandStatus()

// Dispatch routes one completed host packet. Packets for the bridge are
// executed locally; everything else is proxied to the bus verbatim, bad
// checksum included, and any device reply comes back through the relay.
// Protocol failures are answered on the host link; the returned error is
// reserved for link I/O.
func (b *Bridge) Dispatch(p *dxl.Packet) error {
	b.stats.add(func(c *Counters) { c.HostPackets++ })

	if !p.IsBridge() {
		b.log.Debug("forward", zap.Uint8("id", p.ID()), zap.Uint8("cmd", p.Command()), zap.Int("params", len(p.Params())))
		if err := b.transmit(p.Bytes()); err != nil {
			return err
		}
		b.stats.add(func(c *Counters) { c.Forwarded++ })
		return nil
	}

	if !p.Valid() {
		b.stats.add(func(c *Counters) { c.ChecksumErrors++ })
		b.log.Debug("bridge packet rejected", zap.Error(p.Verify()))
		return b.replyInvalid()
	}

	switch p.Command() {
	case dxl.InstSyncRead:
		return b.syncRead(p.Params())
	default:
		b.stats.add(func(c *Counters) { c.UnknownCommands++ })
		b.log.Debug("bridge packet rejected",
			zap.Error(fmt.Errorf("%w: 0x%02X", dxl.ErrUnknownCommand, p.Command())))
		return b.replyInvalid()
	}
}

func (b *Bridge) replyInvalid() error {
	return b.writeHost(invalidCommandReply)
}

func (b *Bridge) writeHost(frame []byte) error {
	if _, err := b.host.Write(frame); err != nil {
		return fmt.Errorf("write host: %w", err)
	}
	return nil
}
