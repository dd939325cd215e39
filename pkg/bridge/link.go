// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"errors"
	"io"
)

// ErrLinkClosed is returned by links whose underlying transport has gone away.
// It is the only error that stops Run.
var ErrLinkClosed = errors.New("link closed")

// Stream is a non-blocking byte stream. ReadByte is only called after
// Available reported at least one byte.
type Stream interface {
	io.ByteReader
	io.Writer

	// Available returns the number of bytes that can be read without blocking
	Available() int
}

// HostLink carries packets between the host computer and the bridge
type HostLink interface {
	Stream
}

// BusLink is the half-duplex device bus. Only one side may transmit at a
// time; the bridge drives the line for the duration of a write and hands it
// back to the devices afterwards.
type BusLink interface {
	Stream

	// Drive switches the transceiver to send
	Drive() error

	// Listen switches the transceiver to receive
	Listen() error

	// Drain blocks until all written bytes have left the wire
	Drain() error
}

// Clock is a monotonic millisecond clock. Values wrap at 2^32.
type Clock interface {
	NowMs() uint32
}
