// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/Thermoquad/dxbridge/pkg/driver"
	"github.com/Thermoquad/dxbridge/pkg/dxl"
	"github.com/spf13/cobra"
)

var (
	syncReadCount    int
	syncReadInterval time.Duration
	syncReadCSV      bool
)

var syncReadCmd = &cobra.Command{
	Use:   "sync_read <ids>",
	Short: "Read several servo positions in one bridge transaction",
	Long: `Send an aggregated SYNC_READ to the bridge and print the result.

The bridge queries each servo's present position in order and replies
once with its millisecond timestamp and every position. If any servo
fails to answer, the bridge rejects the whole read. At most 10 ids may
be listed.

Examples:
  dxbridge sync_read 1-6
  dxbridge sync_read 1,2,3 --count 0 --interval 50ms --csv > poses.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runSyncRead,
}

func init() {
	rootCmd.AddCommand(syncReadCmd)
	syncReadCmd.Flags().IntVar(&syncReadCount, "count", 1, "Number of reads (0 = until Ctrl+C)")
	syncReadCmd.Flags().DurationVar(&syncReadInterval, "interval", 100*time.Millisecond, "Delay between reads")
	syncReadCmd.Flags().BoolVar(&syncReadCSV, "csv", false, "Print comma-separated rows")
}

func runSyncRead(cmd *cobra.Command, args []string) error {
	ids, err := parseIDList(args[0])
	if err != nil {
		return err
	}
	if len(ids) > dxl.MaxSyncReadTargets {
		return fmt.Errorf("%w: %d ids (max %d)", dxl.ErrTooManyTargets, len(ids), dxl.MaxSyncReadTargets)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, conn, connInfo := openClient()
	defer conn.Close()

	if syncReadCSV {
		header := []string{"timestamp_ms"}
		for _, id := range ids {
			header = append(header, fmt.Sprintf("id%d", id))
		}
		fmt.Println(strings.Join(header, ","))
	} else {
		fmt.Printf("Connection: %s\n\n", connInfo)
	}

	failed := 0
	for i := 0; syncReadCount == 0 || i < syncReadCount; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return syncReadSummary(i, failed)
			case <-time.After(syncReadInterval):
			}
		}

		result, err := client.SyncRead(ctx, ids)
		var statusErr *driver.StatusError
		switch {
		case err == nil:
			printSyncRead(ids, result)
		case errors.As(err, &statusErr) && statusErr.Rejected():
			fmt.Fprintf(os.Stderr, "read %d: bridge rejected the read (a servo did not answer)\n", i+1)
			failed++
		case ctx.Err() != nil:
			return syncReadSummary(i, failed)
		default:
			if client.Err() != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "read %d: %v\n", i+1, err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d reads failed", failed)
	}
	return nil
}

func printSyncRead(ids []uint8, r dxl.SyncReadResult) {
	if syncReadCSV {
		row := []string{fmt.Sprintf("%d", r.Timestamp)}
		for _, pos := range r.Positions {
			row = append(row, fmt.Sprintf("%d", pos))
		}
		fmt.Println(strings.Join(row, ","))
		return
	}

	fmt.Printf("[%10d ms]", r.Timestamp)
	for i, pos := range r.Positions {
		fmt.Printf("  %d=%-4d", ids[i], pos)
	}
	fmt.Println()
}

func syncReadSummary(reads, failed int) error {
	if !syncReadCSV {
		fmt.Printf("\n%d reads, %d failed\n", reads, failed)
	}
	if failed > 0 {
		return fmt.Errorf("%d reads failed", failed)
	}
	return nil
}
