// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the acio2emu YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/acio2emu/internal/logging"
	"github.com/Thermoquad/acio2emu/pkg/iob"
	"github.com/Thermoquad/acio2emu/pkg/iob/firmware"
)

const (
	appName    = "acio2emu"
	configFile = "config.yaml"

	DefaultDevice      = "COM1"
	DefaultBaud        = 115200
	DefaultListen      = ":8642"
	DefaultBridgePath  = "/acio2"
	DefaultServiceName = "acio2emu"
)

// Config is the on-disk configuration
type Config struct {
	Device   string       `yaml:"device"`
	Serial   SerialConfig `yaml:"serial"`
	Nodes    []NodeConfig `yaml:"nodes"`
	Bridge   BridgeConfig `yaml:"bridge"`
	Capture  string       `yaml:"capture,omitempty"`
	LogLevel string       `yaml:"log_level,omitempty"`
}

// SerialConfig selects the port the bus is served on
type SerialConfig struct {
	Port string `yaml:"port,omitempty"`
	Baud int    `yaml:"baud"`

	// ReadTimeout bounds a single port read, zero blocks until data arrives
	ReadTimeout time.Duration `yaml:"read_timeout,omitempty"`
	// Drain waits for every reply to leave the port before the next read
	Drain bool `yaml:"drain,omitempty"`
	// KeepInput skips discarding bytes queued before the port was opened
	KeepInput bool `yaml:"keep_input,omitempty"`
}

// NodeConfig describes one slave node
type NodeConfig struct {
	Name     string      `yaml:"name"`
	Firmware string      `yaml:"firmware"`
	Input    InputConfig `yaml:"input,omitempty"`
}

// InputConfig is the initial control state of a node
type InputConfig struct {
	Test    bool `yaml:"test,omitempty"`
	Service bool `yaml:"service,omitempty"`

	Left  bool `yaml:"left,omitempty"`
	Right bool `yaml:"right,omitempty"`
	Up    bool `yaml:"up,omitempty"`
	Down  bool `yaml:"down,omitempty"`

	StickX *float64 `yaml:"stick_x,omitempty"`
	StickY *float64 `yaml:"stick_y,omitempty"`

	JoystickButton bool    `yaml:"joystick_button,omitempty"`
	Trigger1       bool    `yaml:"trigger1,omitempty"`
	Trigger2       bool    `yaml:"trigger2,omitempty"`
	Buttons        [4]bool `yaml:"buttons,flow"`
}

// BridgeConfig configures the WebSocket bridge
type BridgeConfig struct {
	Listen      string `yaml:"listen"`
	Path        string `yaml:"path"`
	Announce    bool   `yaml:"announce,omitempty"`
	ServiceName string `yaml:"service_name"`
}

// Default returns a configuration with a single TBS board
func Default() *Config {
	return &Config{
		Device: DefaultDevice,
		Serial: SerialConfig{Baud: DefaultBaud},
		Nodes: []NodeConfig{
			{Name: "tbs", Firmware: "tbs"},
		},
		Bridge: BridgeConfig{
			Listen:      DefaultListen,
			Path:        DefaultBridgePath,
			ServiceName: DefaultServiceName,
		},
	}
}

// GetConfigDir returns the OS-appropriate configuration directory
func GetConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, appName), nil
		}
	}

	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", appName), nil
}

// GetConfigPath returns the full path to the default configuration file
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load reads the configuration at path. An empty path selects the default
// location, and a missing default file yields Default().
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	logging.Debug("Loaded configuration")
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal encodes the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks the configuration for values the bus cannot honour
func (c *Config) Validate() error {
	if c.Device == "" {
		return errors.New("device must not be empty")
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("invalid baud rate: %d", c.Serial.Baud)
	}
	if c.Serial.ReadTimeout < 0 {
		return fmt.Errorf("invalid serial read timeout: %v", c.Serial.ReadTimeout)
	}
	if len(c.Nodes) > iob.MaxSlaves {
		return fmt.Errorf("too many nodes: %d (max %d)", len(c.Nodes), iob.MaxSlaves)
	}

	known := firmware.Boards()
	for i, n := range c.Nodes {
		if !contains(known, n.Firmware) {
			return fmt.Errorf("node %d (%s): unknown firmware %q (known: %v)", i, n.Name, n.Firmware, known)
		}
		for _, v := range []*float64{n.Input.StickX, n.Input.StickY} {
			if v != nil && (*v < 0 || *v > 1) {
				return fmt.Errorf("node %d (%s): analog value %v out of range [0, 1]", i, n.Name, *v)
			}
		}
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// State converts the input section to a firmware control snapshot
func (in InputConfig) State() firmware.TBSState {
	s := firmware.TBSState{
		Test:           in.Test,
		Service:        in.Service,
		Left:           in.Left,
		Right:          in.Right,
		Up:             in.Up,
		Down:           in.Down,
		JoystickButton: in.JoystickButton,
		Trigger1:       in.Trigger1,
		Trigger2:       in.Trigger2,
		Buttons:        in.Buttons,
	}
	if in.StickX != nil {
		s.StickX = firmware.Axis{Value: *in.StickX, Set: true}
	}
	if in.StickY != nil {
		s.StickY = firmware.Axis{Value: *in.StickY, Set: true}
	}
	return s
}
