// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize_SilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("default logger should be silent")
	}
}

func TestInitialize_FromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer SetLogger(nil)

	if !GetLogger().Core().Enabled(zapcore.WarnLevel) {
		t.Error("warn should be enabled")
	}
	if GetLogger().Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled")
	}
}

func TestInitialize_UnknownLevel(t *testing.T) {
	if err := Initialize("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLogRawBytes(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	LogRawBytes("rx", make([]byte, 300))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["length"] != int64(300) {
		t.Errorf("length field = %v", fields["length"])
	}
	if hex, _ := fields["hex"].(string); !strings.HasSuffix(hex, "...") || len(hex) != 2*maxDumpBytes+3 {
		t.Errorf("hex dump not truncated: %d chars", len(hex))
	}
}
