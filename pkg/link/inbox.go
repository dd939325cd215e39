// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link provides the concrete byte links the bridge runs over: a
// serial port with half-duplex direction control, a WebSocket endpoint for
// the host side, and a monotonic millisecond clock.
package link

import (
	"io"
	"sync"

	"github.com/Thermoquad/dxbridge/pkg/bridge"
)

// inbox accumulates bytes from a reader goroutine so the poll loop can
// consume them without blocking.
type inbox struct {
	mu     sync.Mutex
	buf    []byte
	closed bool
}

func (in *inbox) push(p []byte) {
	in.mu.Lock()
	in.buf = append(in.buf, p...)
	in.mu.Unlock()
}

// Available returns the number of buffered bytes. A closed, drained inbox
// reports one byte so the caller's next ReadByte observes the closure.
func (in *inbox) Available() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.buf) == 0 && in.closed {
		return 1
	}
	return len(in.buf)
}

func (in *inbox) ReadByte() (byte, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.buf) == 0 {
		if in.closed {
			return 0, bridge.ErrLinkClosed
		}
		return 0, io.EOF
	}
	c := in.buf[0]
	in.buf = in.buf[1:]
	if len(in.buf) == 0 {
		// release the backing array once drained
		in.buf = nil
	}
	return c, nil
}

// discard drops everything buffered so far
func (in *inbox) discard() {
	in.mu.Lock()
	in.buf = nil
	in.mu.Unlock()
}

func (in *inbox) close() {
	in.mu.Lock()
	in.closed = true
	in.mu.Unlock()
}

func (in *inbox) isClosed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.closed
}
