// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/Thermoquad/dxbridge/pkg/dxl"
	"github.com/Thermoquad/dxbridge/pkg/link"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze malformed packets and errors",
	Long: `Passively watch a packet stream and track errors with statistics.

This command validates each packet and detects:
  - Checksum errors and abandoned partial packets
  - Malformed packets (parameter counts that do not fit the instruction)
  - Unknown instructions and misaddressed bridge commands
  - Device error flags in status replies (with --replies)

By default, only errors are displayed. Use --show-all to display valid packets too.

Errors are highlighted as they arrive and a statistics summary is shown
at a configurable interval. Nothing is transmitted.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all packets (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
	errorDetectionCmd.Flags().BoolVar(&rawReplies, "replies", false, "Validate packets as status replies")
}

// validatePacket applies the request or reply rules
func validatePacket(p *dxl.Packet) []dxl.ValidationError {
	if rawReplies {
		return dxl.ValidateReply(p)
	}
	return dxl.ValidateRequest(p)
}

func formatPacket(p *dxl.Packet) string {
	if rawReplies {
		return dxl.FormatReply(p)
	}
	return dxl.FormatRequest(p)
}

// packetLabel names a packet for one-line log entries
func packetLabel(p *dxl.Packet) string {
	if rawReplies {
		return fmt.Sprintf("STATUS id=%s", dxl.FormatID(p.ID()))
	}
	return fmt.Sprintf("%s id=%s", dxl.FormatInstruction(p.Command()), dxl.FormatID(p.ID()))
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI {
		return runTUIMode(conn, connInfo)
	}
	return runTextMode(conn, connInfo)
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> PACKET DISCARDED <<<\n\n")
}

// printSyncRead prints an aggregated read reply with the bridge uptime
func printSyncReadReply(packet *dxl.Packet) {
	timestamp := packet.Timestamp().Format("15:04:05.000")
	r, err := dxl.DecodeSyncRead(packet)
	if err != nil {
		fmt.Printf("[%s] \033[1;32mSYNC_READ:\033[0m %v\n\n", timestamp, err)
		return
	}
	fmt.Printf("[%s] \033[1;32mSYNC_READ:\033[0m bridge uptime %s, positions %v\n\n",
		timestamp, formatUptime(uint64(r.Timestamp)), r.Positions)
}

// printValidationErrors prints validation errors for a packet
func printValidationErrors(packet *dxl.Packet, errors []dxl.ValidationError) {
	timestamp := packet.Timestamp().Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X)\n", timestamp, packetLabel(packet), packet.Command())
	if packet.Valid() {
		fmt.Printf("  Checksum: \033[1;32mOK\033[0m\n")
	}

	for i, err := range errors {
		switch err.Type {
		case dxl.AnomalyChecksum:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			fmt.Printf("    Checksum: received=0x%02X, expected=0x%02X\n", packet.Checksum(), packet.ComputedChecksum())

		case dxl.AnomalyLengthMismatch:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			if received, ok := err.Details["received"].(int); ok {
				if expected, ok := err.Details["expected"].(int); ok {
					fmt.Printf("    Params: received=%d, expected=%d\n", received, expected)
				}
			}

		case dxl.AnomalyTooManyTargets:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			if count, ok := err.Details["count"].(int); ok {
				fmt.Printf("    ids=%d (max %d)\n", count, dxl.MaxSyncReadTargets)
			}

		case dxl.AnomalyDeviceError:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			fmt.Printf("    Status: %s\n", dxl.FormatStatus(packet.Command()))

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Printf("  >>> PACKET REJECTED <<<\n\n")
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(conn Connection, connInfo string) error {
	clock := link.NewSystemClock()
	decoder := dxl.NewDecoder()
	synchronized := false
	invalidBytesBeforeSync := 0

	m := initialModel(connInfo, statsInterval, showAll)
	p := tea.NewProgram(m)

	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if err == ErrConnectionClosed {
					p.Send(connectionLostMsg{})
					return
				}
				log.Printf("Read error: %v", err)
				continue
			}

			for i := 0; i < n; i++ {
				packet, decodeErr := decoder.DecodeByte(buf[i], clock.NowMs())

				if decodeErr != nil {
					if synchronized {
						p.Send(serialDataMsg{decodeErr: decodeErr})
					} else {
						invalidBytesBeforeSync++
					}
				} else if packet != nil {
					// A well-formed packet is needed to trust the framing
					if !synchronized && packet.Valid() {
						synchronized = true
						p.Send(syncMsg{invalidBytes: invalidBytesBeforeSync})
					}
					if !synchronized {
						invalidBytesBeforeSync += int(packet.Length()) + 4
						continue
					}

					p.Send(serialDataMsg{
						packet:           packet,
						validationErrors: validatePacket(packet),
					})
				}
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(conn Connection, connInfo string) error {
	fmt.Printf("dxbridge - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All packets\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	clock := link.NewSystemClock()
	decoder := dxl.NewDecoder()
	stats := dxl.NewStatistics()

	synchronized := false
	invalidBytesBeforeSync := 0

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	readBuf := make(chan []byte, 10)
	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if err == ErrConnectionClosed {
					readErr <- err
					return
				}
				log.Printf("Read error: %v", err)
				continue
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			readBuf <- data
		}
	}()

	for {
		select {
		case data := <-readBuf:
			for _, b := range data {
				packet, decodeErr := decoder.DecodeByte(b, clock.NowMs())

				if decodeErr != nil {
					if synchronized {
						stats.Update(nil, decodeErr, nil)
						printDecodeError(decodeErr)
					} else {
						invalidBytesBeforeSync++
					}
					continue
				}
				if packet == nil {
					continue
				}

				if !synchronized {
					if !packet.Valid() {
						invalidBytesBeforeSync += int(packet.Length()) + 4
						continue
					}
					synchronized = true
					if invalidBytesBeforeSync > 0 {
						fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", invalidBytesBeforeSync)
					} else {
						fmt.Printf("[SYNC] Synchronized\n\n")
					}
				}

				validationErrors := validatePacket(packet)
				stats.Update(packet, nil, validationErrors)

				switch {
				case len(validationErrors) > 0:
					printValidationErrors(packet, validationErrors)
				case rawReplies && packet.ID() == dxl.IDBridge && len(packet.Params()) >= dxl.TimestampSize:
					// Always print aggregated reads
					printSyncReadReply(packet)
				case showAll:
					fmt.Print(formatPacket(packet))
				}
			}

		case err := <-readErr:
			fmt.Println()
			fmt.Print(stats.String())
			log.Printf("Connection closed: %v", err)
			return nil

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
