// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package driver

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/Thermoquad/dxbridge/pkg/dxl"
)

// Ping checks that a device is present
func (c *Client) Ping(ctx context.Context, id uint8) error {
	_, err := c.Transact(ctx, dxl.NewPing(id), id)
	return err
}

// ReadRegister reads n bytes of a device's control table starting at addr
func (c *Client) ReadRegister(ctx context.Context, id, addr, n uint8) ([]byte, error) {
	reply, err := c.Transact(ctx, dxl.NewReadRequest(id, addr, n), id)
	if err != nil {
		return nil, err
	}
	data := reply.Params()
	if len(data) != int(n) {
		return nil, fmt.Errorf("%w: read %d bytes from %s, want %d",
			dxl.ErrInvalidLength, len(data), dxl.FormatID(id), n)
	}
	return data, nil
}

// ReadWord reads a little-endian 16-bit register
func (c *Client) ReadWord(ctx context.Context, id, addr uint8) (uint16, error) {
	data, err := c.ReadRegister(ctx, id, addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(data), nil
}

// WriteRegister writes data to a device's control table starting at addr
func (c *Client) WriteRegister(ctx context.Context, id, addr uint8, data []byte) error {
	_, err := c.Transact(ctx, dxl.NewWriteRequest(id, addr, data), id)
	return err
}

// WriteWord writes a little-endian 16-bit register
func (c *Client) WriteWord(ctx context.Context, id, addr uint8, value uint16) error {
	_, err := c.Transact(ctx, dxl.NewWriteWord(id, addr, value), id)
	return err
}

// TorqueOn enables the motor so it holds its goal position
func (c *Client) TorqueOn(ctx context.Context, id uint8) error {
	return c.WriteRegister(ctx, id, dxl.AddrTorqueEnable, []byte{1})
}

// TorqueOff lets the servo be moved by hand
func (c *Client) TorqueOff(ctx context.Context, id uint8) error {
	return c.WriteRegister(ctx, id, dxl.AddrTorqueEnable, []byte{0})
}

// SetPosition writes a goal position
func (c *Client) SetPosition(ctx context.Context, id uint8, position uint16) error {
	return c.WriteWord(ctx, id, dxl.AddrGoalPosition, position)
}

// ReadPosition reads the present position of a single device
func (c *Client) ReadPosition(ctx context.Context, id uint8) (uint16, error) {
	return c.ReadWord(ctx, id, dxl.AddrPresentPosition)
}

// SyncWrite writes n bytes at addr on several devices with one broadcast.
// Devices do not answer.
func (c *Client) SyncWrite(addr, n uint8, entries []dxl.SyncWriteEntry) error {
	p, err := dxl.NewSyncWrite(addr, n, entries)
	if err != nil {
		return err
	}
	return c.Send(p)
}

// SetPositions writes goal positions for several devices with one broadcast
func (c *Client) SetPositions(ids []uint8, positions []uint16) error {
	if len(ids) != len(positions) {
		return fmt.Errorf("%w: %d ids, %d positions", dxl.ErrInvalidLength, len(ids), len(positions))
	}

	entries := make([]dxl.SyncWriteEntry, len(ids))
	for i, id := range ids {
		data := make([]byte, 2)
		binary.LittleEndian.PutUint16(data, positions[i])
		entries[i] = dxl.SyncWriteEntry{ID: id, Data: data}
	}
	return c.SyncWrite(dxl.AddrGoalPosition, 2, entries)
}

// SyncRead reads the present position of up to ten devices in one bridge
// transaction. The bridge answers with a single timestamp taken before the
// first query. Any device failing makes the whole read fail.
func (c *Client) SyncRead(ctx context.Context, ids []uint8) (dxl.SyncReadResult, error) {
	if len(ids) == 0 || len(ids) > dxl.MaxSyncReadTargets {
		return dxl.SyncReadResult{}, fmt.Errorf("%w: %d ids (max %d)",
			dxl.ErrTooManyTargets, len(ids), dxl.MaxSyncReadTargets)
	}

	req, err := dxl.NewSyncRead(ids)
	if err != nil {
		return dxl.SyncReadResult{}, err
	}

	reply, err := c.Transact(ctx, req, dxl.IDBridge)
	if err != nil {
		return dxl.SyncReadResult{}, err
	}

	result, err := dxl.DecodeSyncRead(reply)
	if err != nil {
		return dxl.SyncReadResult{}, err
	}
	if len(result.Positions) != len(ids) {
		return dxl.SyncReadResult{}, fmt.Errorf("%w: %d positions for %d ids",
			dxl.ErrUnexpectedResponse, len(result.Positions), len(ids))
	}
	return result, nil
}
