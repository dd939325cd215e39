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
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping <id>",
	Short: "Ping a servo through the bridge",
	Long: `Send PING instructions to a servo and wait for its status reply.

The bridge forwards the ping to the bus and relays the reply, so a
successful ping verifies the host link, the bridge and the device together.

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	Args: cobra.ExactArgs(1),
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 100*time.Millisecond, "Delay between pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], false)
	if err != nil {
		return err
	}

	client, conn, connInfo := openClient()
	defer conn.Close()

	fmt.Printf("dxbridge - Servo Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Target: id %d, timeout %v\n\n", id, replyTimeout)

	successCount := 0
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		start := time.Now()
		err := client.Ping(context.Background(), id)
		rtt := time.Since(start)

		var statusErr *driver.StatusError
		switch {
		case err == nil:
			fmt.Printf("reply from id %d, rtt=%v\n", id, rtt.Round(100*time.Microsecond))
			successCount++
		case errors.As(err, &statusErr):
			// The device answered, so the link is fine
			fmt.Printf("reply from id %d with %v, rtt=%v\n", id, statusErr, rtt.Round(100*time.Microsecond))
			successCount++
		case errors.Is(err, dxl.ErrTimeout):
			fmt.Printf("TIMEOUT (no reply in %v)\n", replyTimeout)
			failCount++
		default:
			fmt.Printf("FAILED: %v\n", err)
			failCount++
			if client.Err() != nil {
				i = pingCount
			}
		}

		if i < pingCount {
			time.Sleep(pingInterval)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d replies received, %.0f%% packet loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}
