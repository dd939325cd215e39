// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"fmt"
	"time"
)

// Decoder implements the packet framing state machine. It performs O(1)
// work per byte and never blocks. Timestamps are milliseconds from any
// monotonic origin; wraparound is handled.
type Decoder struct {
	state     int
	id        uint8
	length    uint8
	command   uint8
	params    [MaxParams]byte
	count     int
	sum       uint8 // running, not yet complemented
	startedAt uint32
	timeout   uint32
}

// NewDecoder creates a decoder with the default host packet timeout
func NewDecoder() *Decoder {
	return NewDecoderWithTimeout(HostPacketTimeout)
}

// NewDecoderWithTimeout creates a decoder that abandons a partial packet
// once timeout has elapsed since its first marker. Zero disables the timeout.
func NewDecoderWithTimeout(timeout time.Duration) *Decoder {
	return &Decoder{
		state:   stateIdle,
		timeout: uint32(timeout / time.Millisecond),
	}
}

// Reset returns the decoder to idle, discarding any partial packet
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.count = 0
	d.sum = 0
}

// Idle reports whether no packet is being received
func (d *Decoder) Idle() bool {
	return d.state == stateIdle
}

// Expire abandons a stalled partial packet. It returns ErrPacketTimeout if
// one was discarded.
func (d *Decoder) Expire(nowMs uint32) error {
	if d.state == stateIdle || d.timeout == 0 {
		return nil
	}
	if nowMs-d.startedAt > d.timeout {
		d.Reset()
		return ErrPacketTimeout
	}
	return nil
}

// DecodeByte processes a single byte through the state machine.
// Returns a completed packet, or nil if the packet is incomplete.
// A completed packet is returned whether or not its checksum matches;
// check Packet.Valid. Errors report abandoned partial packets only.
func (d *Decoder) DecodeByte(b byte, nowMs uint32) (*Packet, error) {
	expired := d.Expire(nowMs)

	switch d.state {
	case stateIdle:
		if b == Marker {
			d.state = stateMarker
			d.startedAt = nowMs
		}
		return nil, expired

	case stateMarker:
		if b != Marker {
			d.Reset()
			return nil, fmt.Errorf("%w: expected second marker, got 0x%02X", ErrFramingReset, b)
		}
		d.state = stateID
		return nil, nil

	case stateID:
		d.id = b
		d.sum = b
		d.state = stateLength
		return nil, nil

	case stateLength:
		if b < MinLength {
			d.Reset()
			return nil, fmt.Errorf("%w: %w: %d", ErrFramingReset, ErrInvalidLength, b)
		}
		d.length = b
		d.sum += b
		d.state = stateCommand
		return nil, nil

	case stateCommand:
		d.command = b
		d.sum += b
		d.count = 0
		if d.length == MinLength {
			d.state = stateChecksum
		} else {
			d.state = stateParams
		}
		return nil, nil

	case stateParams:
		if d.count >= len(d.params) {
			d.Reset()
			return nil, fmt.Errorf("%w: parameter overflow", ErrFramingReset)
		}
		d.params[d.count] = b
		d.count++
		d.sum += b
		if d.count == int(d.length)-MinLength {
			d.state = stateChecksum
		}
		return nil, nil

	case stateChecksum:
		packet := &Packet{
			id:        d.id,
			length:    d.length,
			command:   d.command,
			params:    append([]byte(nil), d.params[:d.count]...),
			checksum:  b,
			computed:  ^d.sum,
			timestamp: time.Now(),
		}
		d.Reset()
		return packet, nil

	default:
		d.Reset()
		return nil, fmt.Errorf("%w: invalid state %d", ErrFramingReset, d.state)
	}
}
