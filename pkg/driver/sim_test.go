// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package driver

import (
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/dxbridge/pkg/dxl"
)

// hostPipe joins a Client to a Bridge in memory
type hostPipe struct {
	mu  sync.Mutex
	in  []byte // client -> bridge
	out *io.PipeWriter
	r   *io.PipeReader
}

func newHostPipe() *hostPipe {
	r, w := io.Pipe()
	return &hostPipe{out: w, r: r}
}

// bridge side

func (h *hostPipe) Available() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.in)
}

func (h *hostPipe) ReadByte() (byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.in) == 0 {
		return 0, io.EOF
	}
	c := h.in[0]
	h.in = h.in[1:]
	return c, nil
}

func (h *hostPipe) Write(p []byte) (int, error) {
	return h.out.Write(p)
}

// client side

type clientEnd struct{ h *hostPipe }

func (c clientEnd) Read(p []byte) (int, error) { return c.h.r.Read(p) }

func (c clientEnd) Write(p []byte) (int, error) {
	c.h.mu.Lock()
	c.h.in = append(c.h.in, p...)
	c.h.mu.Unlock()
	return len(p), nil
}

// simServo is one device's control table
type simServo struct {
	table  [64]byte
	status uint8
}

// simBus emulates servos on a half-duplex bus. Goal position writes move
// the servo instantly.
type simBus struct {
	mu      sync.Mutex
	servos  map[uint8]*simServo
	pending []byte
	reply   []byte
	driving bool
}

func newSimBus(ids ...uint8) *simBus {
	b := &simBus{servos: map[uint8]*simServo{}}
	for _, id := range ids {
		b.servos[id] = &simServo{}
	}
	return b
}

func (b *simBus) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.reply)
}

func (b *simBus) ReadByte() (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.reply) == 0 {
		return 0, io.EOF
	}
	c := b.reply[0]
	b.reply = b.reply[1:]
	return c, nil
}

func (b *simBus) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, p...)
	return len(p), nil
}

func (b *simBus) Drive() error {
	b.mu.Lock()
	b.driving = true
	b.mu.Unlock()
	return nil
}

func (b *simBus) Drain() error { return nil }

func (b *simBus) Listen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.driving = false

	d := dxl.NewDecoderWithTimeout(0)
	for _, c := range b.pending {
		p, _ := d.DecodeByte(c, 0)
		if p != nil && p.Valid() {
			b.handle(p)
		}
	}
	b.pending = nil
	return nil
}

func (b *simBus) handle(p *dxl.Packet) {
	params := p.Params()

	if p.IsBroadcast() && p.Command() == dxl.InstSyncWrite && len(params) >= 2 {
		addr, n := params[0], int(params[1])
		for rest := params[2:]; len(rest) >= n+1; rest = rest[n+1:] {
			if s, ok := b.servos[rest[0]]; ok {
				s.write(addr, rest[1:n+1])
			}
		}
		return
	}

	s, ok := b.servos[p.ID()]
	if !ok {
		return
	}

	switch p.Command() {
	case dxl.InstPing:
		b.respond(p.ID(), s.status, nil)
	case dxl.InstReadData:
		addr, n := int(params[0]), int(params[1])
		b.respond(p.ID(), s.status, append([]byte(nil), s.table[addr:addr+n]...))
	case dxl.InstWriteData:
		s.write(params[0], params[1:])
		b.respond(p.ID(), s.status, nil)
	}
}

func (b *simBus) respond(id, status uint8, params []byte) {
	b.reply = append(b.reply, dxl.NewPacket(id, status, params).Bytes()...)
}

func (s *simServo) write(addr uint8, data []byte) {
	copy(s.table[addr:], data)
	if addr == dxl.AddrGoalPosition {
		copy(s.table[dxl.AddrPresentPosition:], data)
	}
}

func (b *simBus) register(id, addr uint8) byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.servos[id].table[addr]
}

func (b *simBus) word(id, addr uint8) uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.servos[id].table
	return uint16(t[addr]) | uint16(t[addr+1])<<8
}

func (b *simBus) setWord(id, addr uint8, v uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.servos[id].table[addr] = byte(v)
	b.servos[id].table[addr+1] = byte(v >> 8)
}

func (b *simBus) setStatus(id, status uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.servos[id].status = status
}

type wallClock struct{ start time.Time }

func (c wallClock) NowMs() uint32 { return uint32(time.Since(c.start).Milliseconds()) }
