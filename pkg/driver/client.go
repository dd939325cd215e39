// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package driver is a host-side client for servos reached through the
// bridge. It speaks the device protocol over any byte stream, serial or
// WebSocket, and adds the bridge's aggregated position read.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/dxbridge/pkg/dxl"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a request when the context carries no deadline.
// It covers a full aggregated read of ten devices on a slow bus.
const DefaultTimeout = 500 * time.Millisecond

// Client issues requests one at a time and matches replies by id.
// It is safe for concurrent use; requests are serialized.
type Client struct {
	w       io.Writer
	timeout time.Duration
	log     *zap.Logger

	mu      sync.Mutex // one request in flight
	packets chan *dxl.Packet
	done    chan struct{}
	readErr error
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the per-request timeout used when the context has no deadline
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger attaches a logger for stray and malformed replies
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.log = logger
		}
	}
}

// New creates a client and starts decoding replies from rw in the
// background. The goroutine exits when rw returns an error; closing rw is
// the caller's job.
func New(rw io.ReadWriter, opts ...Option) *Client {
	c := &Client{
		w:       rw,
		timeout: DefaultTimeout,
		log:     zap.NewNop(),
		packets: make(chan *dxl.Packet, 16),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.readLoop(rw)
	return c
}

func (c *Client) readLoop(r io.Reader) {
	defer close(c.done)

	start := time.Now()
	decoder := dxl.NewDecoder()
	buf := make([]byte, 256)

	for {
		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			packet, decodeErr := decoder.DecodeByte(buf[i], uint32(time.Since(start).Milliseconds()))
			if decodeErr != nil {
				c.log.Debug("reply framing", zap.Error(decodeErr))
				continue
			}
			if packet == nil {
				continue
			}
			select {
			case c.packets <- packet:
			default:
				c.log.Warn("reply dropped, queue full", zap.Uint8("id", packet.ID()))
			}
		}
		if err != nil {
			c.readErr = err
			return
		}
	}
}

// Err returns the error that stopped the reader, if it has stopped
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.readErr
	default:
		return nil
	}
}

// Transact sends a request and waits for the reply from id. Stale replies
// queued before the request are discarded. Replies from other ids are
// skipped. A reply whose status is non-zero yields a *StatusError together
// with the reply itself.
func (c *Client) Transact(ctx context.Context, req *dxl.Packet, id uint8) (*dxl.Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.flush()

	if _, err := c.w.Write(req.Bytes()); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%s: %w", dxl.FormatID(id), dxl.ErrTimeout)
			}
			return nil, ctx.Err()

		case <-c.done:
			return nil, fmt.Errorf("connection lost: %w", c.readErr)

		case reply := <-c.packets:
			if reply.ID() != id {
				c.log.Debug("stray reply", zap.Uint8("id", reply.ID()), zap.Uint8("want", id))
				continue
			}
			if err := reply.Verify(); err != nil {
				return nil, fmt.Errorf("%s: %w", dxl.FormatID(id), err)
			}
			if reply.Command() != dxl.StatusOK {
				return reply, &StatusError{ID: id, Status: reply.Command()}
			}
			return reply, nil
		}
	}
}

// Send writes a request that expects no reply, such as a broadcast
func (c *Client) Send(req *dxl.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.w.Write(req.Bytes()); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

func (c *Client) flush() {
	for {
		select {
		case <-c.packets:
		default:
			return
		}
	}
}
