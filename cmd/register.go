// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"

	"github.com/Thermoquad/dxbridge/pkg/dxl"
	"github.com/spf13/cobra"
)

var (
	readCount uint8
	writeWord bool
)

var readCmd = &cobra.Command{
	Use:   "read <id> <address>",
	Short: "Read bytes from a servo's control table",
	Long: `Read one or more bytes from a servo's control table.

Addresses and values accept decimal or 0x-prefixed hex.

Examples:
  dxbridge read 1 0x24 --count 2 --port /dev/ttyACM0`,
	Args: cobra.ExactArgs(2),
	RunE: runRead,
}

var writeCmd = &cobra.Command{
	Use:   "write <id> <address> <value>...",
	Short: "Write bytes to a servo's control table",
	Long: `Write bytes to a servo's control table starting at address.

With --word a single value is written as a little-endian 16-bit word.
Id 254 broadcasts the write; no reply is expected.

Examples:
  dxbridge write 1 0x18 1
  dxbridge write 1 0x1E 512 --word`,
	Args: cobra.MinimumNArgs(3),
	RunE: runWrite,
}

func init() {
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	readCmd.Flags().Uint8Var(&readCount, "count", 1, "Number of bytes to read")
	writeCmd.Flags().BoolVar(&writeWord, "word", false, "Write a single 16-bit value")
}

func runRead(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], false)
	if err != nil {
		return err
	}
	addr, err := parseByte(args[1])
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", args[1], err)
	}
	if readCount == 0 {
		return fmt.Errorf("count must be at least 1")
	}

	client, conn, _ := openClient()
	defer conn.Close()

	data, err := client.ReadRegister(context.Background(), id, addr, readCount)
	if err != nil {
		return err
	}

	fmt.Printf("id %d @ 0x%02X: %s\n", id, addr, formatHexBytes(data))
	if len(data) == 2 {
		fmt.Printf("  word: %d\n", uint16(data[0])|uint16(data[1])<<8)
	}
	return nil
}

func runWrite(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], true)
	if err != nil {
		return err
	}
	addr, err := parseByte(args[1])
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", args[1], err)
	}

	var req *dxl.Packet
	if writeWord {
		if len(args) != 3 {
			return fmt.Errorf("--word takes exactly one value")
		}
		value, err := parseWord(args[2])
		if err != nil {
			return err
		}
		req = dxl.NewWriteWord(id, addr, value)
	} else {
		data := make([]byte, 0, len(args)-2)
		for _, a := range args[2:] {
			b, err := parseByte(a)
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", a, err)
			}
			data = append(data, b)
		}
		req = dxl.NewWriteRequest(id, addr, data)
	}

	client, conn, _ := openClient()
	defer conn.Close()

	if id == dxl.IDBroadcast {
		if err := client.Send(req); err != nil {
			return err
		}
		fmt.Printf("broadcast write @ 0x%02X sent\n", addr)
		return nil
	}

	if _, err := client.Transact(context.Background(), req, id); err != nil {
		return err
	}
	fmt.Printf("id %d @ 0x%02X: OK\n", id, addr)
	return nil
}
