// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/dxbridge/pkg/recording"
	"github.com/spf13/cobra"
)

var (
	recordInterval time.Duration
	recordOutput   string
	recordDuration time.Duration
	playLoop       bool
	exportOutput   string
)

var recordCmd = &cobra.Command{
	Use:   "record <ids>",
	Short: "Record servo poses by hand",
	Long: `Release the listed servos and sample their positions until Ctrl+C.

Torque is switched off so the chain can be moved by hand. Each sample is
one aggregated SYNC_READ through the bridge; samples the bridge rejects
are skipped. The recording is saved as CBOR.

Examples:
  dxbridge record 1-6 -o wave.dxr
  dxbridge record 1,2 --interval 50ms --duration 10s -o nod.dxr`,
	Args: cobra.ExactArgs(1),
	RunE: runRecord,
}

var playCmd = &cobra.Command{
	Use:   "play <file>",
	Short: "Play back a recording",
	Long: `Enable torque and replay a recording with SYNC_WRITE, keeping the
original spacing between frames. Ctrl+C stops playback.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Convert a recording to YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(exportCmd)

	recordCmd.Flags().DurationVar(&recordInterval, "interval", recording.DefaultInterval, "Sampling interval")
	recordCmd.Flags().StringVarP(&recordOutput, "output", "o", "recording.dxr", "Output file")
	recordCmd.Flags().DurationVar(&recordDuration, "duration", 0, "Stop after this long (0 = until Ctrl+C)")

	playCmd.Flags().BoolVar(&playLoop, "loop", false, "Repeat until Ctrl+C")

	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")
}

func runRecord(cmd *cobra.Command, args []string) error {
	ids, err := parseIDList(args[0])
	if err != nil {
		return err
	}
	rec, err := recording.New(ids, recordInterval)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if recordDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, recordDuration)
		defer cancel()
	}

	client, conn, connInfo := openClient()
	defer conn.Close()

	fmt.Printf("dxbridge - Recording\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Servos: %v, every %v\n", ids, recordInterval)
	fmt.Printf("Torque released. Pose the servos; press Ctrl+C to stop.\n\n")

	dropped, err := recording.Record(ctx, client, rec, func(f recording.Frame) {
		fmt.Printf("\rframes: %d  last: %v   ", len(rec.Frames), f.Positions)
	})
	fmt.Println()
	if err != nil {
		return err
	}

	if len(rec.Frames) == 0 {
		return fmt.Errorf("nothing recorded (%d samples dropped)", dropped)
	}
	if err := rec.SaveFile(recordOutput); err != nil {
		return err
	}

	fmt.Printf("\n--- Recording summary ---\n")
	fmt.Printf("File: %s (id %s)\n", recordOutput, rec.ID)
	fmt.Printf("Frames: %d, dropped: %d, duration: %v\n", len(rec.Frames), dropped, rec.Duration())
	return nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	rec, err := recording.LoadFile(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client, conn, connInfo := openClient()
	defer conn.Close()

	fmt.Printf("dxbridge - Playback\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Recording: %s, %d frames over %v, servos %v\n\n",
		rec.Created.Format(time.RFC3339), len(rec.Frames), rec.Duration(), rec.Servos)

	for {
		err := recording.Play(ctx, client, rec, func(i int, f recording.Frame) {
			fmt.Printf("\rframe %d/%d  %v   ", i+1, len(rec.Frames), f.Positions)
		})
		fmt.Println()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}
		if !playLoop || ctx.Err() != nil {
			return nil
		}
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	rec, err := recording.LoadFile(args[0])
	if err != nil {
		return err
	}

	if exportOutput == "" {
		return rec.ExportYAML(os.Stdout)
	}

	f, err := os.Create(exportOutput)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := rec.ExportYAML(f); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Exported %d frames to %s\n", len(rec.Frames), exportOutput)
	return f.Close()
}
