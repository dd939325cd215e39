// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import "time"

// SystemClock is a monotonic millisecond clock starting at zero when created.
// Readings wrap after about 49.7 days.
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a clock anchored at the current instant
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// NowMs returns the milliseconds elapsed since the clock was created, mod 2^32
func (c *SystemClock) NowMs() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}
