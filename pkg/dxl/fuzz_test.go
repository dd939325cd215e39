// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// TestFuzzDecoder_RandomBytes feeds random bytes to the decoder
// and verifies it doesn't panic and every completed packet re-serializes
// to a frame of the advertised length
func TestFuzzDecoder_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()

		length := rng.Intn(1024) + 1
		data := make([]byte, length)
		rng.Read(data)

		for j, b := range data {
			p, _ := d.DecodeByte(b, uint32(j))
			if p == nil {
				continue
			}
			if got := len(p.Bytes()); got != int(p.Length())+4 {
				t.Fatalf("round %d: frame length %d, length byte %d", i, got, p.Length())
			}
		}
	}
}

// TestFuzzDecoder_RandomPackets generates random well-formed packets and
// checks that each is reassembled byte for byte
func TestFuzzDecoder_RandomPackets(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		d := NewDecoder()

		params := make([]byte, rng.Intn(MaxParams+1))
		rng.Read(params)
		p := NewPacket(uint8(rng.Intn(256)), uint8(rng.Intn(256)), params)
		frame := p.Bytes()

		var got *Packet
		for _, b := range frame {
			out, err := d.DecodeByte(b, 0)
			if err != nil {
				t.Fatalf("round %d: unexpected error %v for frame % X", i, err, frame)
			}
			if out != nil {
				got = out
			}
		}

		if got == nil {
			t.Fatalf("round %d: no packet for frame % X", i, frame)
		}
		if !got.Valid() {
			t.Fatalf("round %d: checksum mismatch", i)
		}
		if !bytes.Equal(got.Bytes(), frame) {
			t.Fatalf("round %d: re-serialized % X, want % X", i, got.Bytes(), frame)
		}
	}
}

// TestFuzzSyncRead_RoundTrip encodes random aggregated replies and decodes them
func TestFuzzSyncRead_RoundTrip(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)

	for i := 0; i < rounds; i++ {
		in := SyncReadResult{
			Timestamp: rng.Uint32(),
			Positions: make([]uint16, rng.Intn(MaxSyncReadTargets+1)),
		}
		for j := range in.Positions {
			in.Positions[j] = uint16(rng.Intn(1 << 16))
		}

		frame, err := EncodeSyncRead(in)
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if err := VerifyFrame(frame); err != nil {
			t.Fatalf("round %d: %v", i, err)
		}

		var packet *Packet
		d := NewDecoder()
		for _, b := range frame {
			if p, _ := d.DecodeByte(b, 0); p != nil {
				packet = p
			}
		}
		if packet == nil {
			t.Fatalf("round %d: reply did not decode", i)
		}

		out, err := DecodeSyncRead(packet)
		if err != nil {
			t.Fatalf("round %d: %v", i, err)
		}
		if out.Timestamp != in.Timestamp || len(out.Positions) != len(in.Positions) {
			t.Fatalf("round %d: got %+v, want %+v", i, out, in)
		}
		for j := range in.Positions {
			if out.Positions[j] != in.Positions[j] {
				t.Fatalf("round %d: position %d = %d, want %d", i, j, out.Positions[j], in.Positions[j])
			}
		}
	}
}
