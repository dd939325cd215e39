// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package recording

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/dxbridge/pkg/driver"
	"github.com/Thermoquad/dxbridge/pkg/dxl"
	"golang.org/x/time/rate"
)

// Servos is the part of the host driver recording and playback need.
// *driver.Client satisfies it.
type Servos interface {
	TorqueOn(ctx context.Context, id uint8) error
	TorqueOff(ctx context.Context, id uint8) error
	SyncRead(ctx context.Context, ids []uint8) (dxl.SyncReadResult, error)
	SetPositions(ids []uint8, positions []uint16) error
}

var _ Servos = (*driver.Client)(nil)

// Record releases every servo so the chain can be posed by hand, then
// samples all positions at the recording interval until ctx is done.
// Samples where a servo failed to answer are skipped and counted.
// onFrame, if not nil, sees every stored frame.
func Record(ctx context.Context, s Servos, r *Recording, onFrame func(Frame)) (dropped int, err error) {
	for _, id := range r.Servos {
		if err := s.TorqueOff(ctx, id); err != nil {
			return 0, fmt.Errorf("torque off %s: %w", dxl.FormatID(id), err)
		}
	}

	limiter := rate.NewLimiter(rate.Every(r.Interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			// cancellation is how a recording ends
			return dropped, nil
		}

		result, err := s.SyncRead(ctx, r.Servos)
		if err != nil {
			if ctx.Err() != nil {
				return dropped, nil
			}
			if transient(err) {
				dropped++
				continue
			}
			return dropped, err
		}

		if err := r.Add(result); err != nil {
			return dropped, err
		}
		if onFrame != nil {
			onFrame(r.Frames[len(r.Frames)-1])
		}
	}
}

// transient reports whether a sampling failure is worth retrying
func transient(err error) bool {
	var statusErr *driver.StatusError
	return errors.Is(err, dxl.ErrTimeout) ||
		errors.Is(err, dxl.ErrChecksumMismatch) ||
		errors.As(err, &statusErr)
}

// Play enables torque on every servo and replays the frames, keeping the
// spacing between their timestamps. onFrame, if not nil, is called before
// each frame is sent.
func Play(ctx context.Context, s Servos, r *Recording, onFrame func(int, Frame)) error {
	for _, id := range r.Servos {
		if err := s.TorqueOn(ctx, id); err != nil {
			return fmt.Errorf("torque on %s: %w", dxl.FormatID(id), err)
		}
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for i, f := range r.Frames {
		if i > 0 {
			timer.Reset(frameGap(r.Frames[i-1], f, r.Interval))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		} else {
			<-timer.C
		}

		if onFrame != nil {
			onFrame(i, f)
		}
		if err := s.SetPositions(r.Servos, f.Positions); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return nil
}

// frameGap is the wait between two frames. Gaps larger than ten intervals
// are treated as a pause in sampling and collapsed.
func frameGap(prev, next Frame, interval time.Duration) time.Duration {
	gap := time.Duration(next.Timestamp-prev.Timestamp) * time.Millisecond
	if gap > 10*interval {
		return interval
	}
	return gap
}
