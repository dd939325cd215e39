// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"

	"github.com/Thermoquad/dxbridge/pkg/dxl"
	"go.uber.org/zap"
)

// syncRead executes an aggregated read: query each device's position
// register in request order and answer with one timestamped reply. Any
// failed query discards everything collected so far and the host gets the
// invalid-command reply instead.
func (b *Bridge) syncRead(ids []byte) error {
	// an empty list is rejected the same way as an overlong one
	if len(ids) == 0 || len(ids) > b.cfg.MaxTargets {
		b.stats.add(func(c *Counters) { c.TooManyTargets++ })
		b.log.Debug("sync read rejected",
			zap.Error(fmt.Errorf("%w: %d ids (max %d)", dxl.ErrTooManyTargets, len(ids), b.cfg.MaxTargets)))
		return b.replyInvalid()
	}

	var positions [dxl.MaxSyncReadTargets]uint16
	timestamp := b.clock.NowMs()

	for i, id := range ids {
		pos, err := b.ReadWord(id, b.cfg.PositionRegister)
		if err != nil {
			b.stats.add(func(c *Counters) { c.SyncReadFailures++ })
			b.log.Debug("sync read aborted", zap.Int("index", i), zap.Error(err))
			return b.replyInvalid()
		}
		positions[i] = pos
	}

	frame, err := dxl.EncodeSyncRead(dxl.SyncReadResult{
		Timestamp: timestamp,
		Positions: positions[:len(ids)],
	})
	if err != nil {
		return b.replyInvalid()
	}

	b.stats.add(func(c *Counters) { c.SyncReads++ })
	return b.writeHost(frame)
}
