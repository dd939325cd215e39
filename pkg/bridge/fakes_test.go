// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"bytes"
	"errors"
	"io"
)

// manualClock advances by step every time it is read so that bounded waits
// always terminate.
type manualClock struct {
	now  uint32
	step uint32
}

func (c *manualClock) NowMs() uint32 {
	now := c.now
	c.now += c.step
	return now
}

type fakeHost struct {
	in     []byte
	out    bytes.Buffer
	closed bool
}

func (h *fakeHost) Available() int { return len(h.in) }

func (h *fakeHost) ReadByte() (byte, error) {
	if h.closed {
		return 0, ErrLinkClosed
	}
	if len(h.in) == 0 {
		return 0, io.EOF
	}
	c := h.in[0]
	h.in = h.in[1:]
	return c, nil
}

func (h *fakeHost) Write(p []byte) (int, error) {
	return h.out.Write(p)
}

func (h *fakeHost) push(frames ...[]byte) {
	for _, f := range frames {
		h.in = append(h.in, f...)
	}
}

// fakeBus records every transmitted frame and the direction calls around
// it. respond, when set, is consulted after each transmission and its
// reply becomes readable.
type fakeBus struct {
	in       []byte
	sent     [][]byte
	events   []string
	driving  bool
	writeErr error
	respond  func(frame []byte) []byte
}

func (b *fakeBus) Available() int { return len(b.in) }

func (b *fakeBus) ReadByte() (byte, error) {
	if len(b.in) == 0 {
		return 0, io.EOF
	}
	c := b.in[0]
	b.in = b.in[1:]
	return c, nil
}

func (b *fakeBus) Write(p []byte) (int, error) {
	b.events = append(b.events, "write")
	if !b.driving {
		return 0, errors.New("write while listening")
	}
	if b.writeErr != nil {
		return 0, b.writeErr
	}
	b.sent = append(b.sent, append([]byte(nil), p...))
	return len(p), nil
}

func (b *fakeBus) Drive() error {
	b.events = append(b.events, "drive")
	b.driving = true
	return nil
}

func (b *fakeBus) Listen() error {
	b.events = append(b.events, "listen")
	b.driving = false
	if b.respond != nil && len(b.sent) > 0 {
		b.in = append(b.in, b.respond(b.sent[len(b.sent)-1])...)
	}
	return nil
}

func (b *fakeBus) Drain() error {
	b.events = append(b.events, "drain")
	return nil
}
