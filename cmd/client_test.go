// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIDList(t *testing.T) {
	tests := []struct {
		in   string
		want []uint8
	}{
		{"1", []uint8{1}},
		{"1,3,7", []uint8{1, 3, 7}},
		{"1-4", []uint8{1, 2, 3, 4}},
		{"0x10,2-3", []uint8{16, 2, 3}},
		{" 5 , 6 ,", []uint8{5, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseIDList(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseIDList_Errors(t *testing.T) {
	for _, in := range []string{"", ",", "4-2", "253", "1-254", "x", "300"} {
		_, err := parseIDList(in)
		assert.Error(t, err, in)
	}
}

func TestParseID_Broadcast(t *testing.T) {
	id, err := parseID("254", true)
	require.NoError(t, err)
	assert.Equal(t, uint8(254), id)

	_, err = parseID("254", false)
	assert.Error(t, err)

	// The bridge id is never a device
	_, err = parseID("253", true)
	assert.Error(t, err)
}

func TestParseWord(t *testing.T) {
	v, err := parseWord("0x3FF")
	require.NoError(t, err)
	assert.Equal(t, uint16(1023), v)

	_, err = parseWord("70000")
	assert.Error(t, err)
}

func TestFormatHexBytes(t *testing.T) {
	assert.Equal(t, "01 FF 0A", formatHexBytes([]byte{0x01, 0xFF, 0x0A}))
	assert.Equal(t, "", formatHexBytes(nil))
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "0 seconds", formatUptime(0))
	assert.Equal(t, "1 second", formatUptime(1500))
	assert.Equal(t, "1 minute and 5 seconds", formatUptime(65_000))
	assert.Equal(t, "1 day, 2 hours, and 3 seconds", formatUptime((26*3600+3)*1000))
}

func TestServeFlagKeys(t *testing.T) {
	flags := serveFlagKeys(serveCmd.Flags())
	for key, flag := range flags {
		assert.NotNil(t, flag, key)
	}
	assert.Equal(t, "bus", flags["bus.port"].Name)
	assert.Equal(t, "listen", flags["host.listen"].Name)
}
