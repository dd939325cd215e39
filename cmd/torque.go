// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var torqueCmd = &cobra.Command{
	Use:   "torque <on|off> <ids>",
	Short: "Enable or disable servo torque",
	Long: `Enable or disable torque on one or more servos.

With torque off the servos can be posed by hand, which is how
recordings are made.

Examples:
  dxbridge torque off 1-6
  dxbridge torque on 1,2,3`,
	Args: cobra.ExactArgs(2),
	RunE: runTorque,
}

func init() {
	rootCmd.AddCommand(torqueCmd)
}

func runTorque(cmd *cobra.Command, args []string) error {
	var on bool
	switch strings.ToLower(args[0]) {
	case "on":
		on = true
	case "off":
	default:
		return fmt.Errorf("invalid torque state %q (use on or off)", args[0])
	}

	ids, err := parseIDList(args[1])
	if err != nil {
		return err
	}

	client, conn, _ := openClient()
	defer conn.Close()

	failed := 0
	for _, id := range ids {
		if on {
			err = client.TorqueOn(context.Background(), id)
		} else {
			err = client.TorqueOff(context.Background(), id)
		}
		if err != nil {
			fmt.Printf("id %d: %v\n", id, err)
			failed++
			continue
		}
		fmt.Printf("id %d: torque %s\n", id, strings.ToLower(args[0]))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d servos failed", failed, len(ids))
	}
	return nil
}
