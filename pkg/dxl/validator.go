// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import "fmt"

// AnomalyType represents different types of packet anomalies
type AnomalyType int

const (
	AnomalyChecksum AnomalyType = iota
	AnomalyLengthMismatch
	AnomalyUnknownInstruction
	AnomalyTooManyTargets
	AnomalyMisaddressed
	AnomalyDeviceError
)

// ValidationError represents a packet validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateRequest checks an instruction packet sent by the host.
// Returns a slice of validation errors (empty if the packet is well formed).
func ValidateRequest(p *Packet) []ValidationError {
	errors := []ValidationError{}
	if !p.Valid() {
		errors = append(errors, checksumAnomaly(p))
	}

	n := len(p.params)
	switch p.command {
	case InstPing, InstAction, InstReset:
		if n != 0 {
			errors = append(errors, lengthAnomaly(p, "no parameters", n, 0))
		}
	case InstReadData:
		if n != 2 {
			errors = append(errors, lengthAnomaly(p, "address and count", n, 2))
		}
		if p.id == IDBroadcast {
			errors = append(errors, misaddressed(p, "READ_DATA cannot be broadcast"))
		}
	case InstWriteData, InstRegWrite:
		if n < 2 {
			errors = append(errors, lengthAnomaly(p, "address and data", n, 2))
		}
	case InstSyncWrite:
		errors = append(errors, validateSyncWrite(p)...)
	case InstSyncRead:
		errors = append(errors, validateSyncRead(p)...)
	default:
		errors = append(errors, ValidationError{
			Type:    AnomalyUnknownInstruction,
			Message: fmt.Sprintf("Unknown instruction 0x%02X", p.command),
			Details: map[string]interface{}{"instruction": p.command},
		})
	}

	return errors
}

// ValidateReply checks a status packet returned by a device or the bridge
func ValidateReply(p *Packet) []ValidationError {
	errors := []ValidationError{}
	if !p.Valid() {
		errors = append(errors, checksumAnomaly(p))
	}
	if p.command != StatusOK {
		errors = append(errors, ValidationError{
			Type:    AnomalyDeviceError,
			Message: fmt.Sprintf("%s reported %s", FormatID(p.id), FormatStatus(p.command)),
			Details: map[string]interface{}{"id": p.id, "status": p.command},
		})
	}
	return errors
}

// validateSyncWrite checks that the data block splits into whole entries
func validateSyncWrite(p *Packet) []ValidationError {
	errors := []ValidationError{}
	if p.id != IDBroadcast {
		errors = append(errors, misaddressed(p, "SYNC_WRITE must be broadcast"))
	}
	if len(p.params) < 2 {
		return append(errors, lengthAnomaly(p, "address and entry size", len(p.params), 2))
	}

	entry := int(p.params[1]) + 1
	if rest := len(p.params) - 2; rest == 0 || rest%entry != 0 {
		errors = append(errors, ValidationError{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("SYNC_WRITE data of %d bytes is not a multiple of %d", rest, entry),
			Details: map[string]interface{}{"received": rest, "entry": entry},
		})
	}
	return errors
}

// validateSyncRead checks the bridge-local aggregated read request
func validateSyncRead(p *Packet) []ValidationError {
	errors := []ValidationError{}
	if p.id != IDBridge {
		errors = append(errors, misaddressed(p, "SYNC_READ is only understood by the bridge"))
	}
	if n := len(p.params); n == 0 || n > MaxSyncReadTargets {
		errors = append(errors, ValidationError{
			Type:    AnomalyTooManyTargets,
			Message: fmt.Sprintf("SYNC_READ with %d ids (1..%d)", n, MaxSyncReadTargets),
			Details: map[string]interface{}{"count": n, "max": MaxSyncReadTargets},
		})
	}
	return errors
}

func checksumAnomaly(p *Packet) ValidationError {
	return ValidationError{
		Type:    AnomalyChecksum,
		Message: fmt.Sprintf("Checksum mismatch: got 0x%02X, want 0x%02X", p.checksum, p.computed),
		Details: map[string]interface{}{"received": p.checksum, "expected": p.computed},
	}
}

func lengthAnomaly(p *Packet, what string, received, expected int) ValidationError {
	return ValidationError{
		Type: AnomalyLengthMismatch,
		Message: fmt.Sprintf("%s expects %s (%d bytes), got %d",
			FormatInstruction(p.command), what, expected, received),
		Details: map[string]interface{}{"received": received, "expected": expected},
	}
}

func misaddressed(p *Packet, msg string) ValidationError {
	return ValidationError{
		Type:    AnomalyMisaddressed,
		Message: fmt.Sprintf("%s (id=%s)", msg, FormatID(p.id)),
		Details: map[string]interface{}{"id": p.id},
	}
}
