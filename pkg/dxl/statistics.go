// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks packet statistics and error rates of an observed stream
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalPackets        uint64
	ValidPackets        uint64
	ChecksumErrors      uint64
	FramingErrors       uint64
	MalformedPackets    uint64
	UnknownInstructions uint64
	DeviceErrors        uint64

	// Rates (calculated)
	PacketRate float64 // packets/sec
	ErrorRate  float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a packet, a decode error, or both
func (s *Statistics) Update(packet *Packet, decodeErr error, validationErrors []ValidationError) {
	s.LastUpdateTime = time.Now()

	if decodeErr != nil && errors.Is(decodeErr, ErrFramingReset) {
		s.FramingErrors++
	}
	if packet == nil {
		return
	}
	s.TotalPackets++

	if len(validationErrors) == 0 {
		s.ValidPackets++
		return
	}

	for _, err := range validationErrors {
		switch err.Type {
		case AnomalyChecksum:
			s.ChecksumErrors++
		case AnomalyUnknownInstruction:
			s.UnknownInstructions++
		case AnomalyDeviceError:
			s.DeviceErrors++
		default:
			s.MalformedPackets++
		}
	}
}

// Errors returns the total number of errors seen
func (s *Statistics) Errors() uint64 {
	return s.ChecksumErrors + s.FramingErrors + s.MalformedPackets + s.UnknownInstructions + s.DeviceErrors
}

// CalculateRates calculates packet and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PacketRate = float64(s.TotalPackets) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	percent := func(n uint64) float64 {
		if s.TotalPackets == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalPackets)
	}

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", time.Since(s.StartTime).Seconds())
	result += fmt.Sprintf("Total Packets:   %8d\n", s.TotalPackets)
	result += fmt.Sprintf("Valid Packets:   %8d (%.1f%%)\n", s.ValidPackets, percent(s.ValidPackets))

	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d (%.1f%%)\n", s.ChecksumErrors, percent(s.ChecksumErrors))
	}
	if s.FramingErrors > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d\n", s.FramingErrors)
	}
	if s.MalformedPackets > 0 {
		result += fmt.Sprintf("Malformed Pkts:  %8d (%.1f%%)\n", s.MalformedPackets, percent(s.MalformedPackets))
	}
	if s.UnknownInstructions > 0 {
		result += fmt.Sprintf("Unknown Instr:   %8d\n", s.UnknownInstructions)
	}
	if s.DeviceErrors > 0 {
		result += fmt.Sprintf("Device Errors:   %8d (%.1f%%)\n", s.DeviceErrors, percent(s.DeviceErrors))
	}

	result += fmt.Sprintf("Packet Rate:     %8.1f pkts/sec\n", s.PacketRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
