// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"

	"github.com/Thermoquad/dxbridge/pkg/dxl"
)

// transmit writes frame to the bus under half-duplex discipline: drive the
// line, write, wait for the last bit to leave, release the line. The line is
// released even when the write fails.
func (b *Bridge) transmit(frame []byte) error {
	if err := b.bus.Drive(); err != nil {
		return fmt.Errorf("drive bus: %w", err)
	}

	_, werr := b.bus.Write(frame)
	var derr error
	if werr == nil {
		derr = b.bus.Drain()
	}
	lerr := b.bus.Listen()

	switch {
	case werr != nil:
		return fmt.Errorf("write bus: %w", errors.Join(werr, lerr))
	case derr != nil:
		return fmt.Errorf("drain bus: %w", errors.Join(derr, lerr))
	case lerr != nil:
		return fmt.Errorf("release bus: %w", lerr)
	}
	return nil
}

// ReadRegister performs one request/response exchange with a device and
// returns the n payload bytes of its reply. There are no retries.
func (b *Bridge) ReadRegister(id, addr, n uint8) ([]byte, error) {
	var buf [dxl.MaxPacketSize]byte
	payload, err := b.readRegister(id, addr, n, buf[:])
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), payload...), nil
}

// ReadWord reads a little-endian 16-bit register.
func (b *Bridge) ReadWord(id, addr uint8) (uint16, error) {
	var buf [dxl.OverheadSize + 2]byte
	payload, err := b.readRegister(id, addr, 2, buf[:])
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(payload), nil
}

// readRegister fills buf with the full reply and returns its payload slice.
func (b *Bridge) readRegister(id, addr, n uint8, buf []byte) ([]byte, error) {
	want := int(n) + dxl.OverheadSize
	if int(n) > dxl.MaxParams || want > len(buf) {
		return nil, &TransactionError{ID: id, Address: addr, Err: fmt.Errorf("%w: %d bytes", dxl.ErrInvalidLength, n)}
	}

	b.stats.add(func(c *Counters) { c.BusQueries++ })

	// Bytes already on the bus answer an earlier forwarded packet and
	// belong to the host, not to this query.
	if _, err := b.relay(); err != nil {
		return nil, &TransactionError{ID: id, Address: addr, Err: err}
	}

	if err := b.transmit(dxl.NewReadRequest(id, addr, n).Bytes()); err != nil {
		return nil, &TransactionError{ID: id, Address: addr, Err: err}
	}

	start := b.clock.NowMs()
	for b.bus.Available() < want {
		if b.clock.NowMs()-start > b.busTimeoutMs {
			b.stats.add(func(c *Counters) { c.BusTimeouts++ })
			return nil, &TransactionError{ID: id, Address: addr, Err: dxl.ErrTimeout}
		}
		runtime.Gosched()
	}

	for i := 0; i < want; i++ {
		c, err := b.bus.ReadByte()
		if err != nil {
			return nil, &TransactionError{ID: id, Address: addr, Err: fmt.Errorf("read bus: %w", err)}
		}
		buf[i] = c
	}
	reply := buf[:want]

	if reply[0] != dxl.Marker || reply[1] != dxl.Marker || reply[2] != id {
		b.stats.add(func(c *Counters) { c.BusMalformed++ })
		return nil, &TransactionError{ID: id, Address: addr,
			Err: fmt.Errorf("%w: header % X", dxl.ErrUnexpectedResponse, reply[:3])}
	}
	if err := dxl.VerifyFrame(reply); err != nil {
		b.stats.add(func(c *Counters) { c.BusChecksums++ })
		return nil, &TransactionError{ID: id, Address: addr, Err: err}
	}

	return reply[dxl.HeaderSize+3 : want-1], nil
}
