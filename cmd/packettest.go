// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/dxbridge/pkg/dxl"
	"github.com/Thermoquad/dxbridge/pkg/link"
	"github.com/spf13/cobra"
)

var packetTestTimeout time.Duration

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid packet",
	Long: `Wait for a valid servo bus packet on the connection until timeout.

Invalid bytes and packets with a bad checksum are skipped; the first
complete, well-formed packet ends the test. Nothing is transmitted, so
traffic must come from elsewhere, for example a controller polling the
bus.

Exit codes:
  0 - Packet received before timeout
  1 - Timeout reached without receiving a valid packet
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().DurationVar(&packetTestTimeout, "timeout", 10*time.Second, "How long to wait for a packet")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("dxbridge - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %v\n", packetTestTimeout)
	fmt.Printf("Waiting for a valid packet...\n\n")

	packetChan := make(chan *dxl.Packet, 1)
	errChan := make(chan error, 1)

	go func() {
		clock := link.NewSystemClock()
		decoder := dxl.NewDecoder()
		buf := make([]byte, 128)
		skipped := 0

		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}

			for i := 0; i < n; i++ {
				packet, decodeErr := decoder.DecodeByte(buf[i], clock.NowMs())
				if decodeErr != nil {
					skipped++
					continue
				}
				if packet == nil {
					continue
				}
				if !packet.Valid() {
					skipped += int(packet.Length()) + 4
					continue
				}
				if skipped > 0 {
					fmt.Printf("(skipped %d invalid bytes before sync)\n", skipped)
				}
				packetChan <- packet
				return
			}
		}
	}()

	select {
	case packet := <-packetChan:
		fmt.Printf("SUCCESS: Received valid packet\n")
		fmt.Printf("  ID: %s\n", dxl.FormatID(packet.ID()))
		fmt.Printf("  Command: 0x%02X (%s / status %s)\n", packet.Command(),
			dxl.FormatInstruction(packet.Command()), dxl.FormatStatus(packet.Command()))
		fmt.Printf("  Length: %d\n", packet.Length())
		fmt.Printf("  Checksum: 0x%02X\n", packet.Checksum())
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(packetTestTimeout):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid packet received within %v\n", packetTestTimeout)
		os.Exit(1)
	}

	return nil
}
