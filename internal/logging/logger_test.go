package logging

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitializeSilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("logger should be silent when no level is set")
	}
}

func TestInitializeFromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "warn")
	t.Setenv(LogFileEnvVar, "")
	if err := InitializeFromEnv(); err != nil {
		t.Fatalf("InitializeFromEnv() error = %v", err)
	}
	core := GetLogger().Core()
	if core.Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !core.Enabled(zapcore.WarnLevel) {
		t.Error("warn should be enabled at warn level")
	}
}

func TestLogStateChange(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	LogStateChange("abc", "connected", "lost", errors.New("timeout"))
	LogStateChange("abc", "lost", "connected", nil)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Errorf("state change with cause logged at %v, want warn", entries[0].Level)
	}
	if entries[1].Level != zapcore.InfoLevel {
		t.Errorf("state change without cause logged at %v, want info", entries[1].Level)
	}
	if got := entries[0].ContextMap()["to"]; got != "lost" {
		t.Errorf("to field = %v, want lost", got)
	}
}

func TestLogDeviceCall(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	LogDeviceCall("10.11.99.1", "health", time.Now(), nil)
	LogDeviceCall("10.11.99.1", "apply_sync", time.Now(), errors.New("broken pipe"))

	if n := logs.FilterMessage("Device call failed").Len(); n != 1 {
		t.Errorf("failed calls logged = %d, want 1", n)
	}
	if n := logs.FilterField(zap.String("op", "health")).Len(); n != 1 {
		t.Errorf("health calls logged = %d, want 1", n)
	}
}
