// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import "encoding/binary"

// Command builder functions create Packets ready for Bytes().

// NewPing creates a PING packet.
func NewPing(id uint8) *Packet {
	return NewPacket(id, InstPing, nil)
}

// NewReadRequest creates a READ_DATA packet for n bytes starting at addr.
func NewReadRequest(id, addr, n uint8) *Packet {
	return NewPacket(id, InstReadData, []byte{addr, n})
}

// NewWriteRequest creates a WRITE_DATA packet writing data starting at addr.
func NewWriteRequest(id, addr uint8, data []byte) *Packet {
	params := make([]byte, 0, 1+len(data))
	params = append(params, addr)
	return NewPacket(id, InstWriteData, append(params, data...))
}

// NewWriteWord creates a WRITE_DATA packet for a little-endian 16-bit value.
func NewWriteWord(id, addr uint8, value uint16) *Packet {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], value)
	return NewWriteRequest(id, addr, buf[:])
}

// SyncWriteEntry is one device's slice of a SYNC_WRITE.
type SyncWriteEntry struct {
	ID   uint8
	Data []byte
}

// NewSyncWrite creates a broadcast SYNC_WRITE packet. Every entry must carry
// exactly n data bytes.
func NewSyncWrite(addr, n uint8, entries []SyncWriteEntry) (*Packet, error) {
	params := []byte{addr, n}
	for _, e := range entries {
		if len(e.Data) != int(n) {
			return nil, ErrInvalidLength
		}
		params = append(params, e.ID)
		params = append(params, e.Data...)
	}
	return Build(IDBroadcast, InstSyncWrite, params)
}

// NewSyncRead creates the bridge-local aggregated read request.
func NewSyncRead(ids []uint8) (*Packet, error) {
	return Build(IDBridge, InstSyncRead, ids)
}

// InvalidCommandStatus returns the fixed bridge error reply.
func InvalidCommandStatus() []byte {
	return NewPacket(IDBridge, StatusInstructionError, nil).Bytes()
}

// OKStatus returns the bridge's parameterless success reply.
func OKStatus() []byte {
	return NewPacket(IDBridge, StatusOK, nil).Bytes()
}
