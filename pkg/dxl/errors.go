// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"errors"
	"fmt"
)

var (
	// ErrFramingReset is reported when the decoder abandons a partial packet.
	ErrFramingReset = errors.New("framing reset")

	// ErrPacketTimeout is reported when a partial packet stalls past
	// HostPacketTimeout. It wraps ErrFramingReset.
	ErrPacketTimeout = fmt.Errorf("%w: packet timeout", ErrFramingReset)

	ErrChecksumMismatch   = errors.New("checksum mismatch")
	ErrTimeout            = errors.New("timeout waiting for response")
	ErrUnknownCommand     = errors.New("unknown command")
	ErrTooManyTargets     = errors.New("too many targets")
	ErrInvalidLength      = errors.New("invalid length")
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// ChecksumError carries the computed and received checksum of a rejected packet.
type ChecksumError struct {
	Expected byte
	Actual   byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected 0x%02X, got 0x%02X", e.Expected, e.Actual)
}

func (e *ChecksumError) Unwrap() error {
	return ErrChecksumMismatch
}
