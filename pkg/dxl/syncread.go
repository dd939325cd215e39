// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"encoding/binary"
	"fmt"
)

// SyncReadResult is the payload of a successful aggregated read reply:
// a millisecond timestamp taken once before the first device query and
// one position per requested id, in request order.
type SyncReadResult struct {
	Timestamp uint32
	Positions []uint16
}

// SyncReadLength returns the length byte of an aggregated read reply
// carrying count positions.
func SyncReadLength(count int) int {
	return PositionSize*count + MinLength + TimestampSize
}

// EncodeSyncRead builds the wire frame of a successful aggregated read reply.
func EncodeSyncRead(r SyncReadResult) ([]byte, error) {
	if len(r.Positions) > MaxSyncReadTargets {
		return nil, fmt.Errorf("%w: %d positions (max %d)", ErrTooManyTargets, len(r.Positions), MaxSyncReadTargets)
	}

	params := make([]byte, TimestampSize+PositionSize*len(r.Positions))
	binary.LittleEndian.PutUint32(params, r.Timestamp)
	for i, pos := range r.Positions {
		binary.LittleEndian.PutUint16(params[TimestampSize+PositionSize*i:], pos)
	}

	p, err := Build(IDBridge, StatusOK, params)
	if err != nil {
		return nil, err
	}
	return p.Bytes(), nil
}

// DecodeSyncRead extracts the timestamp and positions from an aggregated
// read reply packet.
func DecodeSyncRead(p *Packet) (SyncReadResult, error) {
	if err := p.Verify(); err != nil {
		return SyncReadResult{}, err
	}
	if p.ID() != IDBridge {
		return SyncReadResult{}, fmt.Errorf("%w: reply from id %d", ErrUnexpectedResponse, p.ID())
	}
	if p.Command() != StatusOK {
		return SyncReadResult{}, fmt.Errorf("%w: status 0x%02X", ErrUnexpectedResponse, p.Command())
	}

	params := p.Params()
	if len(params) < TimestampSize || (len(params)-TimestampSize)%PositionSize != 0 {
		return SyncReadResult{}, fmt.Errorf("%w: %d parameter bytes", ErrInvalidLength, len(params))
	}

	count := (len(params) - TimestampSize) / PositionSize
	r := SyncReadResult{
		Timestamp: binary.LittleEndian.Uint32(params),
		Positions: make([]uint16, count),
	}
	for i := range r.Positions {
		r.Positions[i] = binary.LittleEndian.Uint16(params[TimestampSize+PositionSize*i:])
	}
	return r, nil
}
