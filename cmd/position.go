// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var moveCmd = &cobra.Command{
	Use:   "move <ids> <positions>",
	Short: "Set goal positions",
	Long: `Set the goal position of one or more servos.

A single servo is written directly and its reply awaited. Several servos
are moved together with one broadcast SYNC_WRITE, which has no reply.

Examples:
  dxbridge move 1 512
  dxbridge move 1,2,3 512,600,700`,
	Args: cobra.ExactArgs(2),
	RunE: runMove,
}

func init() {
	rootCmd.AddCommand(moveCmd)
}

func runMove(cmd *cobra.Command, args []string) error {
	ids, err := parseIDList(args[0])
	if err != nil {
		return err
	}

	var positions []uint16
	for _, s := range strings.Split(args[1], ",") {
		pos, err := parseWord(s)
		if err != nil {
			return err
		}
		positions = append(positions, pos)
	}
	if len(positions) != len(ids) {
		return fmt.Errorf("%d ids but %d positions", len(ids), len(positions))
	}

	client, conn, _ := openClient()
	defer conn.Close()

	if len(ids) == 1 {
		if err := client.SetPosition(context.Background(), ids[0], positions[0]); err != nil {
			return err
		}
		fmt.Printf("id %d: goal %d\n", ids[0], positions[0])
		return nil
	}

	if err := client.SetPositions(ids, positions); err != nil {
		return err
	}
	for i, id := range ids {
		fmt.Printf("id %d: goal %d\n", id, positions[i])
	}
	return nil
}
