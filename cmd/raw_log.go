// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log"

	"github.com/Thermoquad/dxbridge/pkg/dxl"
	"github.com/Thermoquad/dxbridge/pkg/link"
	"github.com/spf13/cobra"
)

// rawReplies selects status packet formatting for the analyzers
var rawReplies bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw packet log in human-readable format",
	Long: `Continuously decode and display servo bus packets as they arrive.

Each packet is shown with its timestamp, instruction or status, id and
decoded parameters. Packets with a bad checksum are still shown and
flagged. Use --replies when listening to the device side of a bus, where
the command byte is a status rather than an instruction.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawReplies, "replies", false, "Decode packets as status replies")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("dxbridge - Raw Packet Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	format := dxl.FormatRequest
	if rawReplies {
		format = dxl.FormatReply
	}

	clock := link.NewSystemClock()
	decoder := dxl.NewDecoder()
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			if err == ErrConnectionClosed {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}

		for i := 0; i < n; i++ {
			packet, err := decoder.DecodeByte(buf[i], clock.NowMs())
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if packet != nil {
				fmt.Print(format(packet))
			}
		}
	}
}
