// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/dxbridge/pkg/driver"
	"github.com/Thermoquad/dxbridge/pkg/dxl"
	"github.com/spf13/cobra"
)

var (
	discoveryIDs     string
	discoveryTimeout time.Duration
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Scan the servo bus for devices",
	Long: `Ping every id in a range and report the servos that answer.

For each servo found, the model number and firmware version are read
from the control table. A short per-id timeout keeps full scans quick;
raise it on slow buses.

Examples:
  # Scan the default range
  dxbridge discovery --port /dev/ttyACM0

  # Scan a few ids through a WebSocket bridge
  dxbridge discovery --url ws://bridge.local/bridge --ids 1-12

Exit codes:
  0 - Discovery successful (at least one device found)
  1 - No devices answered
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().StringVar(&discoveryIDs, "ids", "0-30", "Ids to scan, e.g. 1-12 or 1,3,7")
	discoveryCmd.Flags().DurationVar(&discoveryTimeout, "timeout", 30*time.Millisecond, "Timeout for each ping")
}

type discoveryDeviceInfo struct {
	id       uint8
	model    uint16
	firmware uint8
	status   uint8
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	ids, err := parseIDList(discoveryIDs)
	if err != nil {
		return err
	}

	client, conn, connInfo := openClient()
	defer conn.Close()

	fmt.Printf("dxbridge - Device Discovery\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Scanning %d ids, %v per id\n\n", len(ids), discoveryTimeout)

	devices := make([]discoveryDeviceInfo, 0)
	for _, id := range ids {
		device, found, err := probeDevice(client, id)
		if err != nil {
			fmt.Printf("READ FAILED: %v\n", err)
			os.Exit(2)
		}
		if !found {
			continue
		}

		devices = append(devices, device)
		fmt.Printf("Device found:\n")
		fmt.Printf("  ID: %d\n", device.id)
		fmt.Printf("  Model: %d\n", device.model)
		fmt.Printf("  Firmware: %d\n", device.firmware)
		if device.status != dxl.StatusOK {
			fmt.Printf("  Status: %s\n", dxl.FormatStatus(device.status))
		}
	}

	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Devices found: %d\n", len(devices))

	if len(devices) == 0 {
		fmt.Printf("No devices discovered. Check wiring, bus power and baud rate.\n")
		os.Exit(1)
	}
	return nil
}

// probeDevice pings id and, if it answers, reads its identification. A
// device reporting an error status still counts as found.
func probeDevice(client *driver.Client, id uint8) (discoveryDeviceInfo, bool, error) {
	device := discoveryDeviceInfo{id: id}

	ctx, cancel := context.WithTimeout(context.Background(), discoveryTimeout)
	err := client.Ping(ctx, id)
	cancel()

	var statusErr *driver.StatusError
	switch {
	case err == nil:
	case errors.As(err, &statusErr):
		device.status = statusErr.Status
	case errors.Is(err, dxl.ErrTimeout), errors.Is(err, dxl.ErrChecksumMismatch):
		return device, false, nil
	default:
		return device, false, err
	}

	ctx, cancel = context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()

	if model, err := client.ReadWord(ctx, id, dxl.AddrModelNumber); err == nil {
		device.model = model
	}
	if fw, err := client.ReadRegister(ctx, id, dxl.AddrFirmware, 1); err == nil {
		device.firmware = fw[0]
	}
	return device, true, nil
}
