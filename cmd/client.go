// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Thermoquad/dxbridge/pkg/driver"
	"github.com/Thermoquad/dxbridge/pkg/dxl"
)

// openClient opens the connection from the root flags and wraps it in a
// servo client. Connection failures exit with code 2.
func openClient() (*driver.Client, Connection, string) {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	return driver.New(conn, driver.WithTimeout(replyTimeout)), conn, connInfo
}

// parseID parses a servo id. Reserved ids are accepted only when allowed.
func parseID(s string, allowBroadcast bool) (uint8, error) {
	v, err := parseByte(s)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	if v == dxl.IDBroadcast && allowBroadcast {
		return v, nil
	}
	if v > dxl.MaxDeviceID {
		return 0, fmt.Errorf("invalid id %d (device ids are 0-%d)", v, dxl.MaxDeviceID)
	}
	return v, nil
}

// parseIDList parses "1,2,5" or "1-4" style lists
func parseIDList(s string) ([]uint8, error) {
	var ids []uint8
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		lo, hi, isRange := strings.Cut(part, "-")
		if !isRange {
			id, err := parseID(part, false)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
			continue
		}

		first, err := parseID(lo, false)
		if err != nil {
			return nil, err
		}
		last, err := parseID(hi, false)
		if err != nil {
			return nil, err
		}
		if last < first {
			return nil, fmt.Errorf("invalid range %q", part)
		}
		for id := int(first); id <= int(last); id++ {
			ids = append(ids, uint8(id))
		}
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("no servo ids given")
	}
	return ids, nil
}

// parseByte accepts decimal or 0x-prefixed hex
func parseByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}

func parseWord(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: %w", s, err)
	}
	return uint16(v), nil
}

func formatHexBytes(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}
