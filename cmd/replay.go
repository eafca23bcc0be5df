// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/acio2emu/internal/capture"
	"github.com/Thermoquad/acio2emu/internal/logging"
	"github.com/Thermoquad/acio2emu/pkg/acio2"
	"github.com/Thermoquad/acio2emu/pkg/iob"
)

var replayVerbose bool

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Replay a capture against a freshly configured bus",
	Long: `Feed every request from a capture written by 'serve --capture' into a new
bus built from the configuration file, and compare the replies with the
captured ones.

Node input comes from the configuration file, so replies carrying live input
(coins, buttons, axes) only match when the configuration reproduces the
state at capture time.

Exit codes:
  0 - Every reply matched
  1 - One or more replies differed
  2 - Capture or configuration error`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVarP(&replayVerbose, "verbose", "v", false, "Print every mismatching reply")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	f, err := os.Open(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Capture error: %v\n", err)
		os.Exit(2)
	}
	defer f.Close()

	bus, _, err := cfg.BuildBus(logging.Named("iob"), iob.WithStatistics(iob.NewStatistics()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}
	if err := bus.Open(cfg.Device); err != nil {
		fmt.Fprintf(os.Stderr, "Bus error: %v\n", err)
		os.Exit(2)
	}
	defer bus.Close()

	fmt.Printf("acio2emu - Capture Replay\n")
	fmt.Printf("Capture: %s\n", args[0])
	fmt.Printf("Device: %s, %d node(s)\n\n", cfg.Device, bus.NumberOfNodes())

	result, err := capture.Replay(capture.NewReader(f), bus)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Replay stopped after %d records: %v\n", result.Records, err)
		os.Exit(2)
	}

	if replayVerbose {
		for _, m := range result.Mismatches {
			printMismatch(m)
		}
	}

	fmt.Printf("--- Replay Results ---\n")
	fmt.Printf("Records:    %d\n", result.Records)
	fmt.Printf("Matched:    %d\n", result.Matched)
	fmt.Printf("Mismatched: %d\n", len(result.Mismatches))
	fmt.Printf("\n%s\n", bus.Statistics().String())

	if len(result.Mismatches) > 0 {
		os.Exit(1)
	}
	return nil
}

func printMismatch(m capture.Mismatch) {
	rec := m.Record
	fmt.Printf("#%d %s node=0x%02X tag=0x%02X captured %s\n",
		m.Index, rec.Time.Format("15:04:05.000"), rec.Node, rec.Tag, iob.Outcome(rec.Outcome))
	fmt.Printf("  Request:  %s", acio2.HexDump(rec.Payload, "            "))
	fmt.Printf("  Captured: %s", acio2.HexDump(rec.Reply, "            "))
	fmt.Printf("  Replayed: %s\n", acio2.HexDump(m.Got, "            "))
}
