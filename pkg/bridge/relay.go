// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import "fmt"

// relay copies bytes waiting on the bus to the host one at a time with no
// framing. It returns the number of bytes moved.
func (b *Bridge) relay() (int, error) {
	n := 0
	var one [1]byte
	for b.bus.Available() > 0 {
		c, err := b.bus.ReadByte()
		if err != nil {
			return n, fmt.Errorf("read bus: %w", err)
		}
		one[0] = c
		if err := b.writeHost(one[:]); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		b.stats.add(func(c *Counters) { c.RelayedBytes += uint64(n) })
	}
	return n, nil
}
