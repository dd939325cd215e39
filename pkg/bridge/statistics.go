// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"
	"sync"
	"time"
)

// Counters is a point-in-time copy of the bridge statistics
type Counters struct {
	StartTime time.Time

	HostPackets      uint64 // completed host packets
	ChecksumErrors   uint64 // bridge-directed packets with a bad checksum
	FramingResets    uint64 // abandoned partial host packets
	PacketTimeouts   uint64 // subset of FramingResets caused by a stall
	UnknownCommands  uint64
	Forwarded        uint64 // packets proxied onto the bus
	RelayedBytes     uint64 // bus bytes copied to the host
	SyncReads        uint64 // successful aggregated reads
	SyncReadFailures uint64
	TooManyTargets   uint64
	BusQueries       uint64
	BusTimeouts      uint64
	BusChecksums     uint64
	BusMalformed     uint64
	LinkErrors       uint64

	// Rates (calculated)
	PacketRate float64 // packets/sec
	ErrorRate  float64 // errors/sec
}

// Statistics tracks bridge activity. The poll loop writes it; metrics and
// status readers take snapshots from other goroutines.
type Statistics struct {
	mu sync.Mutex
	c  Counters
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{c: Counters{StartTime: time.Now()}}
}

func (s *Statistics) add(f func(c *Counters)) {
	s.mu.Lock()
	f(&s.c)
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters with rates filled in
func (s *Statistics) Snapshot() Counters {
	s.mu.Lock()
	c := s.c
	s.mu.Unlock()

	elapsed := time.Since(c.StartTime).Seconds()
	if elapsed > 0 {
		c.PacketRate = float64(c.HostPackets) / elapsed
		c.ErrorRate = float64(c.errors()) / elapsed
	}
	return c
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	s.c = Counters{StartTime: time.Now()}
	s.mu.Unlock()
}

func (c Counters) errors() uint64 {
	return c.ChecksumErrors + c.FramingResets + c.UnknownCommands + c.SyncReadFailures + c.TooManyTargets
}

// String returns a formatted statistics summary
func (c Counters) String() string {
	elapsed := time.Since(c.StartTime)

	result := fmt.Sprintf("=== Bridge Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Host Packets:    %8d\n", c.HostPackets)
	result += fmt.Sprintf("Forwarded:       %8d\n", c.Forwarded)
	result += fmt.Sprintf("Relayed Bytes:   %8d\n", c.RelayedBytes)
	result += fmt.Sprintf("Sync Reads:      %8d\n", c.SyncReads)

	if c.SyncReadFailures > 0 {
		result += fmt.Sprintf("Sync Read Fails: %8d\n", c.SyncReadFailures)
		if c.BusTimeouts > 0 {
			result += fmt.Sprintf("  Bus Timeouts:     %5d\n", c.BusTimeouts)
		}
		if c.BusChecksums > 0 {
			result += fmt.Sprintf("  Bus Checksums:    %5d\n", c.BusChecksums)
		}
		if c.BusMalformed > 0 {
			result += fmt.Sprintf("  Bus Malformed:    %5d\n", c.BusMalformed)
		}
	}
	if c.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d\n", c.ChecksumErrors)
	}
	if c.FramingResets > 0 {
		result += fmt.Sprintf("Framing Resets:  %8d (%d timeouts)\n", c.FramingResets, c.PacketTimeouts)
	}
	if c.UnknownCommands > 0 {
		result += fmt.Sprintf("Unknown Cmds:    %8d\n", c.UnknownCommands)
	}
	if c.TooManyTargets > 0 {
		result += fmt.Sprintf("Too Many IDs:    %8d\n", c.TooManyTargets)
	}
	if c.LinkErrors > 0 {
		result += fmt.Sprintf("Link Errors:     %8d\n", c.LinkErrors)
	}

	result += fmt.Sprintf("Packet Rate:     %8.1f pkts/sec\n", c.PacketRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", c.ErrorRate)
	result += "=====================================\n"

	return result
}
