// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package recording stores pose sequences captured from a chain of servos
// so they can be played back later.
package recording

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Thermoquad/dxbridge/pkg/dxl"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DefaultInterval is the sampling period used when none is given
const DefaultInterval = 100 * time.Millisecond

// formatVersion is bumped whenever the on-disk layout changes
const formatVersion = 1

var (
	ErrNoServos          = errors.New("recording has no servos")
	ErrPositionMismatch  = errors.New("frame position count does not match servo count")
	ErrUnsupportedFormat = errors.New("unsupported recording format")
)

// Frame is one pose: the bridge timestamp of the aggregated read and one
// position per servo, in servo order.
type Frame struct {
	Timestamp uint32   `cbor:"1,keyasint"`
	Positions []uint16 `cbor:"2,keyasint"`
}

// Recording is an ordered pose sequence for a fixed list of servos
type Recording struct {
	Version  int           `cbor:"0,keyasint"`
	ID       uuid.UUID     `cbor:"1,keyasint"`
	Created  time.Time     `cbor:"2,keyasint"`
	Interval time.Duration `cbor:"3,keyasint"`
	Servos   []uint8       `cbor:"4,keyasint"`
	Frames   []Frame       `cbor:"5,keyasint"`
}

// New creates an empty recording for servos sampled every interval
func New(servos []uint8, interval time.Duration) (*Recording, error) {
	if len(servos) == 0 {
		return nil, ErrNoServos
	}
	if len(servos) > dxl.MaxSyncReadTargets {
		return nil, fmt.Errorf("%w: %d servos (max %d)", dxl.ErrTooManyTargets, len(servos), dxl.MaxSyncReadTargets)
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Recording{
		Version:  formatVersion,
		ID:       uuid.New(),
		Created:  time.Now(),
		Interval: interval,
		Servos:   append([]uint8(nil), servos...),
	}, nil
}

// Add appends a pose taken by an aggregated read
func (r *Recording) Add(result dxl.SyncReadResult) error {
	if len(result.Positions) != len(r.Servos) {
		return fmt.Errorf("%w: %d positions for %d servos", ErrPositionMismatch, len(result.Positions), len(r.Servos))
	}
	r.Frames = append(r.Frames, Frame{
		Timestamp: result.Timestamp,
		Positions: append([]uint16(nil), result.Positions...),
	})
	return nil
}

// Duration is the time spanned by the recorded frames
func (r *Recording) Duration() time.Duration {
	if len(r.Frames) < 2 {
		return 0
	}
	// uint32 subtraction handles a clock wrap mid-recording
	ms := r.Frames[len(r.Frames)-1].Timestamp - r.Frames[0].Timestamp
	return time.Duration(ms) * time.Millisecond
}

func (r *Recording) validate() error {
	if r.Version != formatVersion {
		return fmt.Errorf("%w: version %d", ErrUnsupportedFormat, r.Version)
	}
	if len(r.Servos) == 0 {
		return ErrNoServos
	}
	for i, f := range r.Frames {
		if len(f.Positions) != len(r.Servos) {
			return fmt.Errorf("frame %d: %w", i, ErrPositionMismatch)
		}
	}
	return nil
}

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Save writes the recording as CBOR
func (r *Recording) Save(w io.Writer) error {
	if err := encMode.NewEncoder(w).Encode(r); err != nil {
		return fmt.Errorf("failed to encode recording: %w", err)
	}
	return nil
}

// Load reads a recording written by Save
func Load(rd io.Reader) (*Recording, error) {
	var r Recording
	if err := cbor.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode recording: %w", err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// SaveFile writes the recording to path
func (r *Recording) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := r.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadFile reads a recording from path
func LoadFile(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

type yamlFrame struct {
	T         uint32   `yaml:"t"`
	Positions []uint16 `yaml:"positions,flow"`
}

type yamlRecording struct {
	ID       string      `yaml:"id"`
	Created  time.Time   `yaml:"created"`
	Interval string      `yaml:"interval"`
	Servos   []int       `yaml:"servos,flow"`
	Frames   []yamlFrame `yaml:"frames"`
}

// ExportYAML writes a human-readable copy of the recording
func (r *Recording) ExportYAML(w io.Writer) error {
	doc := yamlRecording{
		ID:       r.ID.String(),
		Created:  r.Created,
		Interval: r.Interval.String(),
		Servos:   make([]int, len(r.Servos)),
		Frames:   make([]yamlFrame, len(r.Frames)),
	}
	for i, id := range r.Servos {
		doc.Servos[i] = int(id)
	}
	for i, f := range r.Frames {
		doc.Frames[i] = yamlFrame{T: f.Timestamp, Positions: f.Positions}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to export recording: %w", err)
	}
	return enc.Close()
}
