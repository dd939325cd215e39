// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

// ============================================================
// Test Helpers
// ============================================================

// buildFrame assembles a wire frame with a correct checksum
func buildFrame(id, length, cmd uint8, params ...byte) []byte {
	body := append([]byte{id, length, cmd}, params...)
	frame := append([]byte{Marker, Marker}, body...)
	return append(frame, Checksum(body))
}

// feed pushes every byte through the decoder at a fixed time and returns
// the completed packets and errors
func feed(d *Decoder, data []byte, now uint32) ([]*Packet, []error) {
	var packets []*Packet
	var errs []error
	for _, b := range data {
		p, err := d.DecodeByte(b, now)
		if err != nil {
			errs = append(errs, err)
		}
		if p != nil {
			packets = append(packets, p)
		}
	}
	return packets, errs
}

// ============================================================
// Checksum Tests
// ============================================================

func TestChecksum_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{"empty", []byte{}, 0xFF},
		{"bridge error reply", []byte{IDBridge, 0x02, StatusInstructionError}, 0xC0}, // ^byte((253 + 2 + 0x40) % 256)
		{"read position of id 1", []byte{0x01, 0x04, 0x02, 0x24, 0x02}, 0xD2},
		{"sum wraps", []byte{0xFF, 0xFF, 0x02}, 0xFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.expected {
				t.Errorf("Checksum() = 0x%02X, want 0x%02X", got, tt.expected)
			}
		})
	}
}

func TestVerifyChecksum_RejectsSingleBitFlips(t *testing.T) {
	data := []byte{0x05, 0x05, InstWriteData, 0x1E, 0x00, 0x02}
	csum := Checksum(data)

	if !VerifyChecksum(data, csum) {
		t.Fatal("VerifyChecksum rejected its own checksum")
	}

	for i := range data {
		for bit := 0; bit < 8; bit++ {
			mutated := append([]byte(nil), data...)
			mutated[i] ^= 1 << bit
			if VerifyChecksum(mutated, csum) {
				t.Errorf("flip of byte %d bit %d was accepted", i, bit)
			}
		}
	}
}

func TestVerifyFrame(t *testing.T) {
	frame := buildFrame(0x01, 0x04, InstReadData, 0x24, 0x02)
	if err := VerifyFrame(frame); err != nil {
		t.Fatalf("VerifyFrame() = %v", err)
	}

	frame[len(frame)-1]++
	err := VerifyFrame(frame)
	var csErr *ChecksumError
	if !errors.As(err, &csErr) {
		t.Fatalf("expected *ChecksumError, got %v", err)
	}
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Error("ChecksumError should unwrap to ErrChecksumMismatch")
	}

	if err := VerifyFrame([]byte{Marker, Marker, 1}); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("short frame: expected ErrInvalidLength, got %v", err)
	}
}

// ============================================================
// Packet Tests
// ============================================================

func TestBuild_LengthAndChecksum(t *testing.T) {
	p := NewReadRequest(1, AddrPresentPosition, 2)

	if p.Length() != 4 {
		t.Errorf("Length() = %d, want 4", p.Length())
	}
	want := []byte{0xFF, 0xFF, 0x01, 0x04, 0x02, 0x24, 0x02, 0xD2}
	if !bytes.Equal(p.Bytes(), want) {
		t.Errorf("Bytes() = % X, want % X", p.Bytes(), want)
	}
	if !p.Valid() {
		t.Error("built packet should be valid")
	}
}

func TestBuild_TooManyParams(t *testing.T) {
	_, err := Build(1, InstWriteData, make([]byte, MaxParams+1))
	if !errors.Is(err, ErrInvalidLength) {
		t.Errorf("expected ErrInvalidLength, got %v", err)
	}
	if _, err := Build(1, InstWriteData, make([]byte, MaxParams)); err != nil {
		t.Errorf("MaxParams should be accepted: %v", err)
	}
}

func TestInvalidCommandStatus(t *testing.T) {
	want := []byte{0xFF, 0xFF, 253, 0x02, 0x40, 0xC0} // ^byte((253 + 0x02 + 0x40) % 256)
	if got := InvalidCommandStatus(); !bytes.Equal(got, want) {
		t.Errorf("InvalidCommandStatus() = % X, want % X", got, want)
	}
	if got := OKStatus(); got[4] != StatusOK || VerifyFrame(got) != nil {
		t.Errorf("OKStatus() = % X", got)
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecoder_CompletesPacket(t *testing.T) {
	tests := []struct {
		name   string
		id     uint8
		cmd    uint8
		params []byte
	}{
		{"zero parameters", 1, InstPing, nil},
		{"read request", 1, InstReadData, []byte{0x24, 0x02}},
		{"marker valued fields", 0xFF, 0xFF, []byte{0xFF, 0xFF, 0xFF}},
		{"bridge sync read", IDBridge, InstSyncRead, []byte{1, 2, 3}},
		{"max parameters", 7, InstWriteData, bytes.Repeat([]byte{0xAA}, MaxParams)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder()
			frame := buildFrame(tt.id, uint8(len(tt.params)+2), tt.cmd, tt.params...)

			packets, errs := feed(d, frame, 0)
			if len(errs) != 0 {
				t.Fatalf("unexpected errors: %v", errs)
			}
			if len(packets) != 1 {
				t.Fatalf("expected 1 packet, got %d", len(packets))
			}

			p := packets[0]
			if p.ID() != tt.id || p.Command() != tt.cmd {
				t.Errorf("id/cmd = %d/0x%02X, want %d/0x%02X", p.ID(), p.Command(), tt.id, tt.cmd)
			}
			if !bytes.Equal(p.Params(), tt.params) && !(len(p.Params()) == 0 && len(tt.params) == 0) {
				t.Errorf("Params() = % X, want % X", p.Params(), tt.params)
			}
			if !p.Valid() {
				t.Error("packet should be valid")
			}
			if !bytes.Equal(p.Bytes(), frame) {
				t.Errorf("Bytes() = % X, want % X", p.Bytes(), frame)
			}
			if !d.Idle() {
				t.Error("decoder should be idle after a packet")
			}
		})
	}
}

func TestDecoder_BadChecksumStillCompletes(t *testing.T) {
	d := NewDecoder()
	frame := buildFrame(IDBridge, 0x03, InstSyncRead, 0x01)
	frame[len(frame)-1] ^= 0x01

	packets, _ := feed(d, frame, 0)
	if len(packets) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(packets))
	}
	if packets[0].Valid() {
		t.Error("packet with corrupted checksum should be invalid")
	}
	if !errors.Is(packets[0].Verify(), ErrChecksumMismatch) {
		t.Error("Verify should report ErrChecksumMismatch")
	}
	if !d.Idle() {
		t.Error("decoder should return to idle regardless of checksum")
	}
}

func TestDecoder_NoiseBeforeMarkers(t *testing.T) {
	d := NewDecoder()
	data := append([]byte{0x00, 0x13, 0x37}, buildFrame(3, 2, InstPing)...)

	packets, errs := feed(d, data, 0)
	if len(errs) != 0 {
		t.Errorf("noise in idle should be silent, got %v", errs)
	}
	if len(packets) != 1 || packets[0].ID() != 3 {
		t.Fatalf("expected ping from id 3, got %v", packets)
	}
}

func TestDecoder_BadSecondMarker(t *testing.T) {
	d := NewDecoder()

	_, err := d.DecodeByte(0xFF, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, err = d.DecodeByte(0x01, 0)
	if !errors.Is(err, ErrFramingReset) {
		t.Errorf("expected ErrFramingReset, got %v", err)
	}
	if !d.Idle() {
		t.Error("decoder should be idle after a bad second marker")
	}

	packets, _ := feed(d, buildFrame(1, 2, InstPing), 0)
	if len(packets) != 1 {
		t.Error("decoder should resynchronize on the next packet")
	}
}

func TestDecoder_LengthBelowMinimum(t *testing.T) {
	for _, length := range []byte{0, 1} {
		d := NewDecoder()
		_, errs := feed(d, []byte{0xFF, 0xFF, 0x01, length}, 0)
		if len(errs) != 1 || !errors.Is(errs[0], ErrInvalidLength) {
			t.Errorf("length %d: expected ErrInvalidLength, got %v", length, errs)
		}
		if !d.Idle() {
			t.Errorf("length %d: decoder should be idle", length)
		}
	}
}

func TestDecoder_Timeout(t *testing.T) {
	d := NewDecoder()
	frame := buildFrame(1, 4, InstReadData, 0x24, 0x02)

	// First half arrives at t=1000
	packets, _ := feed(d, frame[:4], 1000)
	if len(packets) != 0 || d.Idle() {
		t.Fatal("partial packet should be in progress")
	}

	// Exactly at the limit nothing is discarded
	if err := d.Expire(1100); err != nil {
		t.Fatalf("Expire at the limit: %v", err)
	}

	// Past the limit the partial packet is dropped
	if err := d.Expire(1101); !errors.Is(err, ErrPacketTimeout) {
		t.Fatalf("expected ErrPacketTimeout, got %v", err)
	}
	if !d.Idle() {
		t.Fatal("decoder should be idle after timeout")
	}

	// The tail alone must not produce a packet
	packets, _ = feed(d, frame[4:], 1102)
	if len(packets) != 0 {
		t.Errorf("tail after timeout produced %d packets", len(packets))
	}
}

func TestDecoder_TimeoutOnNextByte(t *testing.T) {
	d := NewDecoder()
	feed(d, []byte{0xFF, 0xFF, 0x01}, 0)

	// A late byte first expires the stalled packet, then starts fresh
	p, err := d.DecodeByte(0xFF, 500)
	if p != nil || !errors.Is(err, ErrPacketTimeout) {
		t.Fatalf("expected timeout, got %v, %v", p, err)
	}
	if errors.Is(err, ErrPacketTimeout) && !errors.Is(err, ErrFramingReset) {
		t.Error("ErrPacketTimeout should wrap ErrFramingReset")
	}

	packets, _ := feed(d, buildFrame(1, 2, InstPing)[1:], 500)
	if len(packets) != 1 {
		t.Error("marker that triggered the timeout should start the next packet")
	}
}

func TestDecoder_TimeoutWraparound(t *testing.T) {
	d := NewDecoderWithTimeout(100 * time.Millisecond)
	start := uint32(0xFFFFFFF0)
	feed(d, []byte{0xFF, 0xFF}, start)

	if err := d.Expire(start + 50); err != nil {
		t.Errorf("50ms across wraparound should not expire: %v", err)
	}
	if err := d.Expire(start + 200); !errors.Is(err, ErrPacketTimeout) {
		t.Errorf("200ms across wraparound should expire, got %v", err)
	}
}

func TestDecoder_TimeoutDisabled(t *testing.T) {
	d := NewDecoderWithTimeout(0)
	feed(d, []byte{0xFF, 0xFF, 0x01}, 0)
	if err := d.Expire(1 << 30); err != nil {
		t.Errorf("disabled timeout expired: %v", err)
	}
}

// ============================================================
// Sync Read Codec Tests
// ============================================================

func TestSyncRead_RoundTrip(t *testing.T) {
	in := SyncReadResult{Timestamp: 0x01020304, Positions: []uint16{0x0100, 0x0200}}

	frame, err := EncodeSyncRead(in)
	if err != nil {
		t.Fatal(err)
	}

	want := []byte{0xFF, 0xFF, IDBridge, 10, StatusOK,
		0x04, 0x03, 0x02, 0x01,
		0x00, 0x01,
		0x00, 0x02}
	if !bytes.Equal(frame[:len(frame)-1], want) {
		t.Errorf("frame = % X, want % X", frame[:len(frame)-1], want)
	}
	if err := VerifyFrame(frame); err != nil {
		t.Fatalf("VerifyFrame() = %v", err)
	}

	packets, _ := feed(NewDecoder(), frame, 0)
	if len(packets) != 1 {
		t.Fatal("encoded reply did not decode")
	}
	out, err := DecodeSyncRead(packets[0])
	if err != nil {
		t.Fatal(err)
	}
	if out.Timestamp != in.Timestamp || len(out.Positions) != 2 ||
		out.Positions[0] != 0x0100 || out.Positions[1] != 0x0200 {
		t.Errorf("decoded %+v, want %+v", out, in)
	}
}

func TestSyncRead_Length(t *testing.T) {
	for count := 0; count <= MaxSyncReadTargets; count++ {
		if got := SyncReadLength(count); got != 2*count+6 {
			t.Errorf("SyncReadLength(%d) = %d", count, got)
		}
	}
}

func TestEncodeSyncRead_TooMany(t *testing.T) {
	_, err := EncodeSyncRead(SyncReadResult{Positions: make([]uint16, MaxSyncReadTargets+1)})
	if !errors.Is(err, ErrTooManyTargets) {
		t.Errorf("expected ErrTooManyTargets, got %v", err)
	}
}

func TestDecodeSyncRead_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		packet *Packet
		want   error
	}{
		{"error status", NewPacket(IDBridge, StatusInstructionError, nil), ErrUnexpectedResponse},
		{"wrong id", NewPacket(3, StatusOK, []byte{0, 0, 0, 0}), ErrUnexpectedResponse},
		{"short timestamp", NewPacket(IDBridge, StatusOK, []byte{1, 2}), ErrInvalidLength},
		{"odd position bytes", NewPacket(IDBridge, StatusOK, []byte{0, 0, 0, 0, 1}), ErrInvalidLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeSyncRead(tt.packet); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// ============================================================
// Command Builder Tests
// ============================================================

func TestNewSyncWrite(t *testing.T) {
	p, err := NewSyncWrite(AddrGoalPosition, 2, []SyncWriteEntry{
		{ID: 1, Data: []byte{0x00, 0x02}},
		{ID: 2, Data: []byte{0x10, 0x01}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.ID() != IDBroadcast || p.Command() != InstSyncWrite {
		t.Errorf("id/cmd = %d/0x%02X", p.ID(), p.Command())
	}
	want := []byte{AddrGoalPosition, 2, 1, 0x00, 0x02, 2, 0x10, 0x01}
	if !bytes.Equal(p.Params(), want) {
		t.Errorf("Params() = % X, want % X", p.Params(), want)
	}

	if _, err := NewSyncWrite(AddrGoalPosition, 2, []SyncWriteEntry{{ID: 1, Data: []byte{1}}}); !errors.Is(err, ErrInvalidLength) {
		t.Errorf("short entry: expected ErrInvalidLength, got %v", err)
	}
}

func TestNewWriteWord(t *testing.T) {
	p := NewWriteWord(4, AddrGoalPosition, 0x0302)
	want := []byte{AddrGoalPosition, 0x02, 0x03}
	if !bytes.Equal(p.Params(), want) {
		t.Errorf("Params() = % X, want % X", p.Params(), want)
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatStatus(t *testing.T) {
	tests := []struct {
		status uint8
		want   string
	}{
		{StatusOK, "OK"},
		{StatusInstructionError, "INSTRUCTION"},
		{StatusOverload | StatusOverheating, "OVERHEATING|OVERLOAD"},
		{0x80, "0x80"},
	}
	for _, tt := range tests {
		if got := FormatStatus(tt.status); got != tt.want {
			t.Errorf("FormatStatus(0x%02X) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestFormatReply_SyncRead(t *testing.T) {
	frame, _ := EncodeSyncRead(SyncReadResult{Timestamp: 42, Positions: []uint16{512}})
	packets, _ := feed(NewDecoder(), frame, 0)
	out := FormatReply(packets[0])

	if !strings.Contains(out, "Timestamp: 42 ms") || !strings.Contains(out, "Position 0: 512") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestFormatReply_BridgeFixedReplies(t *testing.T) {
	tests := []struct {
		frame []byte
		want  string
	}{
		{OKStatus(), "Bridge acknowledgement"},
		{InvalidCommandStatus(), "Bridge rejected the command"},
	}
	for _, tt := range tests {
		packets, _ := feed(NewDecoder(), tt.frame, 0)
		if len(packets) != 1 {
			t.Fatalf("% X: decoded %d packets", tt.frame, len(packets))
		}
		if out := FormatReply(packets[0]); !strings.Contains(out, tt.want) {
			t.Errorf("% X: unexpected output:\n%s", tt.frame, out)
		}
	}

	// A device's OK status is not a bridge acknowledgement
	packets, _ := feed(NewDecoder(), NewPacket(3, StatusOK, nil).Bytes(), 0)
	if out := FormatReply(packets[0]); strings.Contains(out, "Bridge") {
		t.Errorf("device status formatted as bridge reply:\n%s", out)
	}
}

func TestFormatRequest(t *testing.T) {
	out := FormatRequest(NewReadRequest(1, AddrPresentPosition, 2))
	if !strings.Contains(out, "READ_DATA") || !strings.Contains(out, "Address: 0x24, Count: 2") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if FormatID(IDBroadcast) != "BROADCAST" || FormatID(7) != "7" {
		t.Error("FormatID mismatch")
	}
}
