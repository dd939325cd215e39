// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dxl implements the framed, checksummed wire protocol spoken by
// Dynamixel-style actuator buses and by the dxbridge controller.
//
// Every packet on either link has the same layout:
//
//	0xFF 0xFF <id> <length> <command> <params...> <checksum>
//
// where length = len(params) + 2 and checksum is the bitwise complement of
// the truncated sum of id, length, command and params.
package dxl

import "time"

// Framing
const (
	Marker = 0xFF

	HeaderSize   = 2 // two markers
	OverheadSize = 6 // markers + id + length + command + checksum
)

// Packet size limits
const (
	MinLength     = 2   // command + checksum, zero parameters
	MaxLength     = 255 // largest value the length byte can carry
	MaxParams     = MaxLength - MinLength
	MaxPacketSize = HeaderSize + 2 + MaxLength
)

// Reserved identifiers
const (
	IDBridge    = 253 // the bridge itself
	IDBroadcast = 254 // all bus devices
	MaxDeviceID = 252
)

// Device instructions
const (
	InstPing      = 0x01
	InstReadData  = 0x02
	InstWriteData = 0x03
	InstRegWrite  = 0x04
	InstAction    = 0x05
	InstReset     = 0x06
	InstSyncWrite = 0x83
)

// Bridge-local instructions
const (
	InstSyncRead = 0x08
)

// Status byte values carried in the command slot of a reply
const (
	StatusOK               = 0x00
	StatusInputVoltage     = 0x01
	StatusAngleLimit       = 0x02
	StatusOverheating      = 0x04
	StatusRange            = 0x08
	StatusChecksum         = 0x10
	StatusOverload         = 0x20
	StatusInstructionError = 0x40
)

// Control table addresses used by the bridge and the host driver
const (
	AddrModelNumber     = 0x00
	AddrFirmware        = 0x02
	AddrTorqueEnable    = 0x18
	AddrGoalPosition    = 0x1E
	AddrPresentPosition = 0x24
)

// Bridge limits
const (
	MaxSyncReadTargets = 10
	HostPacketTimeout  = 100 * time.Millisecond
	TimestampSize      = 4
	PositionSize       = 2
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateMarker
	stateID
	stateLength
	stateCommand
	stateParams
	stateChecksum
)
