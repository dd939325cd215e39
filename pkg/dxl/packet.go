// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"fmt"
	"time"
)

// Packet represents one framed packet. Requests carry an instruction in the
// command slot; replies carry a status byte there.
type Packet struct {
	id        uint8
	length    uint8
	command   uint8
	params    []byte
	checksum  uint8 // as received (or as computed for locally built packets)
	computed  uint8 // complement of the running sum
	timestamp time.Time
}

// NewPacket builds a packet and computes its length and checksum.
// It panics if params exceeds MaxParams; use Build for error handling.
func NewPacket(id, command uint8, params []byte) *Packet {
	p, err := Build(id, command, params)
	if err != nil {
		panic(fmt.Sprintf("dxl: %v", err))
	}
	return p
}

// Build builds a packet and computes its length and checksum.
func Build(id, command uint8, params []byte) (*Packet, error) {
	if len(params) > MaxParams {
		return nil, fmt.Errorf("%w: %d parameters (max %d)", ErrInvalidLength, len(params), MaxParams)
	}
	p := &Packet{
		id:        id,
		length:    uint8(len(params) + MinLength),
		command:   command,
		params:    append([]byte(nil), params...),
		timestamp: time.Now(),
	}
	p.computed = Checksum(p.body())
	p.checksum = p.computed
	return p, nil
}

// ID returns the destination (request) or source (reply) id.
func (p *Packet) ID() uint8 {
	return p.id
}

// Length returns the length byte: parameter count + 2.
func (p *Packet) Length() uint8 {
	return p.length
}

// Command returns the instruction or status byte.
func (p *Packet) Command() uint8 {
	return p.command
}

// Params returns the parameter bytes.
func (p *Packet) Params() []byte {
	return p.params
}

// Checksum returns the checksum byte as it was received.
func (p *Packet) Checksum() uint8 {
	return p.checksum
}

// ComputedChecksum returns the checksum computed over the received fields.
func (p *Packet) ComputedChecksum() uint8 {
	return p.computed
}

// Valid reports whether the received checksum matches the computed one.
func (p *Packet) Valid() bool {
	return p.checksum == p.computed
}

// Verify returns a *ChecksumError when the packet is not well-formed.
func (p *Packet) Verify() error {
	if p.Valid() {
		return nil
	}
	return &ChecksumError{Expected: p.computed, Actual: p.checksum}
}

// Timestamp returns the time the packet was completed or built.
func (p *Packet) Timestamp() time.Time {
	return p.timestamp
}

// IsBridge returns true if the packet is addressed to the bridge itself
func (p *Packet) IsBridge() bool {
	return p.id == IDBridge
}

// IsBroadcast returns true if the packet is addressed to all devices
func (p *Packet) IsBroadcast() bool {
	return p.id == IDBroadcast
}

// Bytes serializes the packet exactly as its fields hold it. The stored
// checksum is emitted without recomputation, so a received packet is
// reproduced byte for byte.
func (p *Packet) Bytes() []byte {
	out := make([]byte, 0, OverheadSize+len(p.params))
	out = append(out, Marker, Marker, p.id, p.length, p.command)
	out = append(out, p.params...)
	return append(out, p.checksum)
}

func (p *Packet) body() []byte {
	b := make([]byte, 0, 3+len(p.params))
	b = append(b, p.id, p.length, p.command)
	return append(b, p.params...)
}
