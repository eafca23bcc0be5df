// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Thermoquad/acio2emu/internal/logging"
	"github.com/Thermoquad/acio2emu/pkg/acio2"
	"github.com/Thermoquad/acio2emu/pkg/iob"
)

var (
	serveCapture       string
	serveTUI           bool
	serveStatsInterval int
	serveShowAll       bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer a game's I/O board requests on a serial port",
	Long: `Run the emulated bus on a connection and answer every request the game sends.

The bus and its nodes come from the configuration file. The serial port is
taken from --port, or from serial.port in the configuration. The serial
section also sets read_timeout, drain (wait for each reply to leave the port)
and keep_input (do not discard bytes queued before startup). With --url the
bus is served through a remote WebSocket relay instead.

Modes:
  Text (default): Periodic statistics, optionally every transaction (--show-all)
  TUI (--tui):    Live statistics, node panel and event log. Keys insert coins
                  and toggle the test and service switches of the selected node.

Transactions can be recorded with --capture and checked later with 'replay'.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveCapture, "capture", "", "Record transactions to a CBOR capture file")
	serveCmd.Flags().BoolVar(&serveTUI, "tui", false, "Use the interactive terminal interface")
	serveCmd.Flags().IntVar(&serveStatsInterval, "stats-interval", 10, "Statistics display interval in seconds (text mode, 0 to disable)")
	serveCmd.Flags().BoolVar(&serveShowAll, "show-all", false, "Print every transaction (text mode)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	capturePath := cfg.Capture
	if serveCapture != "" {
		capturePath = serveCapture
	}

	useTUI := serveTUI
	if useTUI && !term.IsTerminal(int(os.Stdout.Fd())) {
		logging.Warn("Standard output is not a terminal, falling back to text mode")
		useTUI = false
	}

	conn, connInfo, err := openConfiguredConnection(cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	var events *eventFeed
	var hooks []func(*iob.Transaction)
	switch {
	case useTUI:
		events = newEventFeed(eventFeedSize)
		hooks = append(hooks, events.hook)
	case serveShowAll:
		hooks = append(hooks, printTransaction)
	}

	emu, err := newEmulator(cfg, capturePath, hooks...)
	if err != nil {
		return err
	}
	defer emu.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pumpErr := make(chan error, 1)
	go func() {
		pumpErr <- pumpConnection(conn, emu.bus)
	}()

	if useTUI {
		return runServeTUI(ctx, emu, events, connInfo, pumpErr)
	}
	return runServeText(ctx, emu, connInfo, capturePath, pumpErr)
}

// pumpConnection feeds everything read from conn into the bus and writes
// the replies back until the connection fails
func pumpConnection(conn Connection, bus *iob.Locked) error {
	buf := make([]byte, 256)
	var replies []byte

	for {
		n, err := conn.Read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}

		logging.LogRawBytes("rx", buf[:n])
		replies = bus.Transfer(replies[:0], buf[:n])
		if len(replies) == 0 {
			continue
		}

		logging.LogRawBytes("tx", replies)
		if _, err := conn.Write(replies); err != nil {
			return fmt.Errorf("write error: %w", err)
		}
	}
}

func runServeText(ctx context.Context, emu *emulator, connInfo, capturePath string, pumpErr <-chan error) error {
	fmt.Printf("acio2emu - Serve\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Device: %s\n", emu.cfg.Device)
	for _, p := range emu.panels {
		fmt.Printf("  Slot %d: %s\n", p.Slot, p.Name)
	}
	if capturePath != "" {
		fmt.Printf("Capture: %s\n", capturePath)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	var ticks <-chan time.Time
	if serveStatsInterval > 0 {
		ticker := time.NewTicker(time.Duration(serveStatsInterval) * time.Second)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-ticks:
			stats := emu.statistics()
			fmt.Printf("\n%s\n", stats.String())

		case err := <-pumpErr:
			if isClosed(err) {
				logging.Info("Connection closed")
				return nil
			}
			logging.Error("Connection failed", zap.Error(err))
			return fmt.Errorf("connection error: %w", err)

		case <-ctx.Done():
			stats := emu.statistics()
			fmt.Printf("\nShutting down...\n%s", stats.String())
			return nil
		}
	}
}

func printTransaction(t *iob.Transaction) {
	line := fmt.Sprintf("[%s] %s slot=%d tag=0x%02X",
		t.Time.Format("15:04:05.000"), t.Outcome, t.Slot, t.Request.Tag)
	if cmd, ok := commandCode(t.Request); ok {
		line += fmt.Sprintf(" cmd=0x%04X", cmd)
	}
	if t.Err != nil {
		line += fmt.Sprintf(" err=%v", t.Err)
	}
	fmt.Println(line)

	if t.Outcome == iob.OutcomeReplied {
		fmt.Printf("  Reply: %s", acio2.HexDump(t.Reply, "         "))
	}
}

// commandCode returns the big-endian command word leading a request payload
func commandCode(p *acio2.Packet) (uint16, bool) {
	if len(p.Payload) < 2 {
		return 0, false
	}
	return uint16(p.Payload[0])<<8 | uint16(p.Payload[1]), true
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, ErrConnectionClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
