// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Thermoquad/dxbridge/pkg/bridge"
	"go.bug.st/serial"
)

// Direction selects the modem line that switches a half-duplex transceiver
type Direction int

const (
	// DirectionNone leaves direction to the adapter (auto-direction hardware)
	DirectionNone Direction = iota
	// DirectionRTS drives the transceiver enable from RTS
	DirectionRTS
	// DirectionDTR drives the transceiver enable from DTR
	DirectionDTR
)

// ParseDirection parses "none", "rts" or "dtr"
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return DirectionNone, nil
	case "rts":
		return DirectionRTS, nil
	case "dtr":
		return DirectionDTR, nil
	}
	return DirectionNone, fmt.Errorf("unknown direction control %q (use rts, dtr or none)", s)
}

func (d Direction) String() string {
	switch d {
	case DirectionRTS:
		return "rts"
	case DirectionDTR:
		return "dtr"
	default:
		return "none"
	}
}

// Port is the part of a serial port the link needs. serial.Port satisfies it.
type Port interface {
	io.ReadWriteCloser
	SetRTS(rts bool) error
	SetDTR(dtr bool) error
	Drain() error
}

// Serial is a buffered serial link usable as either the host or the bus
// side of the bridge. A reader goroutine moves incoming bytes into memory
// so Available and ReadByte never block.
type Serial struct {
	inbox

	port      Port
	direction Direction
	invert    bool
	done      chan struct{}
	readErr   error
}

var (
	_ bridge.HostLink = (*Serial)(nil)
	_ bridge.BusLink  = (*Serial)(nil)
)

// SerialOption configures a Serial link
type SerialOption func(*Serial)

// WithDirection selects the direction control line
func WithDirection(d Direction) SerialOption {
	return func(s *Serial) {
		s.direction = d
	}
}

// WithInvertedDirection makes the control line active low
func WithInvertedDirection(invert bool) SerialOption {
	return func(s *Serial) {
		s.invert = invert
	}
}

// OpenSerial opens a serial port at 8N1 and starts reading from it
func OpenSerial(portName string, baudRate int, opts ...SerialOption) (*Serial, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	s, err := NewSerial(port, opts...)
	if err != nil {
		port.Close()
		return nil, err
	}
	return s, nil
}

// NewSerial wraps an already open port. The transceiver starts out listening.
func NewSerial(port Port, opts ...SerialOption) (*Serial, error) {
	s := &Serial{
		port: port,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.Listen(); err != nil {
		return nil, err
	}

	go s.readLoop()
	return s, nil
}

func (s *Serial) readLoop() {
	defer close(s.done)

	buf := make([]byte, 256)
	for {
		n, err := s.port.Read(buf)
		if n > 0 {
			s.push(buf[:n])
		}
		if err != nil {
			s.readErr = err
			s.close()
			return
		}
	}
}

func (s *Serial) Write(p []byte) (int, error) {
	if s.isClosed() {
		return 0, bridge.ErrLinkClosed
	}
	return s.port.Write(p)
}

// Drive asserts the direction line so the transceiver transmits
func (s *Serial) Drive() error {
	return s.setDirection(true)
}

// Listen releases the direction line so devices can answer
func (s *Serial) Listen() error {
	return s.setDirection(false)
}

// Drain blocks until the UART has shifted out every written byte
func (s *Serial) Drain() error {
	return s.port.Drain()
}

func (s *Serial) setDirection(transmit bool) error {
	level := transmit != s.invert
	switch s.direction {
	case DirectionRTS:
		if err := s.port.SetRTS(level); err != nil {
			return fmt.Errorf("set RTS: %w", err)
		}
	case DirectionDTR:
		if err := s.port.SetDTR(level); err != nil {
			return fmt.Errorf("set DTR: %w", err)
		}
	}
	return nil
}

// Close closes the port and waits for the reader goroutine to exit
func (s *Serial) Close() error {
	err := s.port.Close()
	<-s.done
	return err
}

// Err returns the error that stopped the reader, if any
func (s *Serial) Err() error {
	select {
	case <-s.done:
	default:
		return nil
	}
	if errors.Is(s.readErr, io.EOF) {
		return nil
	}
	return s.readErr
}
