// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/acio2emu/internal/config"
	"github.com/Thermoquad/acio2emu/internal/logging"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Emulator flags
	configPath string
	logLevel   string
	deviceName string
)

var rootCmd = &cobra.Command{
	Use:   "acio2emu",
	Short: "ACIO2 I/O board emulator",
	Long: `acio2emu - Emulates an ACIO2 I/O bus and the boards attached to it.

The emulated bus answers master enumeration and forwards every other request
to the configured slave nodes. Host-side commands talk to a real or emulated
bus to check framing, enumerate nodes and measure round-trip time.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/acio2 [--username user]

For WebSocket authentication, the password is read from the ACIO2EMU_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: initLogging,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", config.DefaultBaud, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (default: user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: $"+logging.LogLevelEnvVar+" or silent)")
	rootCmd.PersistentFlags().StringVar(&deviceName, "device", "", "Device name the emulated bus answers to")
}

func initLogging(cmd *cobra.Command, args []string) error {
	return logging.Initialize(logLevel)
}

// loadConfig reads the configuration file and applies command line overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("device") {
		cfg.Device = deviceName
	}
	if flags.Changed("port") {
		cfg.Serial.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Serial.Baud = baudRate
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// A level from the config file only applies when neither the flag nor
	// the environment picked one.
	if logLevel == "" && cfg.LogLevel != "" && os.Getenv(logging.LogLevelEnvVar) == "" {
		if err := logging.Initialize(cfg.LogLevel); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
