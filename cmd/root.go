// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Request timeout for servo commands
	replyTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "dxbridge",
	Short: "Servo bus protocol bridge",
	Long: `dxbridge - A bridge between a host computer and a half-duplex servo bus.

The serve command runs the bridge itself: it forwards host packets to the bus,
relays device replies back, and answers the aggregated SYNC_READ locally.

The remaining commands are host-side tools that talk to servos through a
running bridge (or directly to a bus adapter) and analyze captured traffic.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 1000000]
  WebSocket: --url ws://host/bridge [--username user]

For WebSocket authentication, the password is read from the DXBRIDGE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 1000000, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().DurationVar(&replyTimeout, "reply-timeout", 500*time.Millisecond, "How long to wait for each reply")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
