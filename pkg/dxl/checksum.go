// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dxl

// Sum returns the truncated (mod 256) sum of data.
func Sum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// Checksum computes the protocol checksum: the bitwise complement of the
// truncated sum of data. data covers id through the last parameter.
func Checksum(data []byte) byte {
	return ^Sum(data)
}

// VerifyChecksum reports whether received is the checksum of data.
func VerifyChecksum(data []byte, received byte) bool {
	return Checksum(data) == received
}

// VerifyFrame checks a complete wire frame (markers included) against its
// trailing checksum byte.
func VerifyFrame(frame []byte) error {
	if len(frame) < OverheadSize {
		return ErrInvalidLength
	}
	body := frame[HeaderSize : len(frame)-1]
	received := frame[len(frame)-1]
	if expected := Checksum(body); expected != received {
		return &ChecksumError{Expected: expected, Actual: received}
	}
	return nil
}
