// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"bytes"
	"fmt"
	"strings"
)

// FormatRequest formats an instruction packet into a human-readable string
func FormatRequest(p *Packet) string {
	timestamp := p.timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%02X) id=%s len=%d%s\n",
		timestamp, FormatInstruction(p.command), p.command, FormatID(p.id), p.length, checksumSuffix(p))

	switch {
	case p.command == InstReadData && len(p.params) == 2:
		result += fmt.Sprintf("  Address: 0x%02X, Count: %d\n", p.params[0], p.params[1])
	case p.command == InstWriteData && len(p.params) >= 1:
		result += fmt.Sprintf("  Address: 0x%02X\n", p.params[0])
		result += formatHex(p.params[1:])
	case p.command == InstSyncRead && p.id == IDBridge:
		result += fmt.Sprintf("  Targets: %v\n", p.params)
	case len(p.params) > 0:
		result += formatHex(p.params)
	}
	return result
}

// FormatReply formats a status packet into a human-readable string
func FormatReply(p *Packet) string {
	timestamp := p.timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] STATUS %s id=%s len=%d%s\n",
		timestamp, FormatStatus(p.command), FormatID(p.id), p.length, checksumSuffix(p))

	switch frame := p.Bytes(); {
	case bytes.Equal(frame, OKStatus()):
		return result + "  Bridge acknowledgement\n"
	case bytes.Equal(frame, InvalidCommandStatus()):
		return result + "  Bridge rejected the command\n"
	}

	if p.id == IDBridge && p.command == StatusOK && len(p.params) >= TimestampSize {
		if r, err := DecodeSyncRead(p); err == nil {
			result += fmt.Sprintf("  Timestamp: %d ms\n", r.Timestamp)
			for i, pos := range r.Positions {
				result += fmt.Sprintf("    Position %d: %d (0x%04X)\n", i, pos, pos)
			}
			return result
		}
	}
	if len(p.params) > 0 {
		result += formatHex(p.params)
	}
	return result
}

// FormatInstruction returns the human-readable name for an instruction
func FormatInstruction(inst uint8) string {
	switch inst {
	case InstPing:
		return "PING"
	case InstReadData:
		return "READ_DATA"
	case InstWriteData:
		return "WRITE_DATA"
	case InstRegWrite:
		return "REG_WRITE"
	case InstAction:
		return "ACTION"
	case InstReset:
		return "RESET"
	case InstSyncWrite:
		return "SYNC_WRITE"
	case InstSyncRead:
		return "SYNC_READ"
	default:
		return "UNKNOWN"
	}
}

// FormatStatus returns the set error flags of a status byte, or OK
func FormatStatus(status uint8) string {
	if status == StatusOK {
		return "OK"
	}

	names := []struct {
		bit  uint8
		name string
	}{
		{StatusInputVoltage, "INPUT_VOLTAGE"},
		{StatusAngleLimit, "ANGLE_LIMIT"},
		{StatusOverheating, "OVERHEATING"},
		{StatusRange, "RANGE"},
		{StatusChecksum, "CHECKSUM"},
		{StatusOverload, "OVERLOAD"},
		{StatusInstructionError, "INSTRUCTION"},
	}

	flags := []string{}
	for _, n := range names {
		if status&n.bit != 0 {
			flags = append(flags, n.name)
		}
	}
	if len(flags) == 0 {
		return fmt.Sprintf("0x%02X", status)
	}
	return strings.Join(flags, "|")
}

// FormatID names the reserved ids and prints device ids in decimal
func FormatID(id uint8) string {
	switch id {
	case IDBridge:
		return "BRIDGE"
	case IDBroadcast:
		return "BROADCAST"
	default:
		return fmt.Sprintf("%d", id)
	}
}

func checksumSuffix(p *Packet) string {
	if p.Valid() {
		return ""
	}
	return fmt.Sprintf(" BAD_CHECKSUM(got 0x%02X, want 0x%02X)", p.checksum, p.computed)
}

func formatHex(data []byte) string {
	result := "  Params: "
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			result += "\n          "
		}
		result += fmt.Sprintf("%02X ", b)
	}
	return result + "\n"
}
