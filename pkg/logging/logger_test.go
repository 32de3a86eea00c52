package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARN":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(DefaultConfig())
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if logger == nil {
		t.Fatal("NewLogger returned nil")
	}

	dev, err := NewLogger(Config{Level: "debug", Development: true})
	if err != nil {
		t.Fatalf("NewLogger (development) failed: %v", err)
	}
	if !dev.Core().Enabled(zapcore.DebugLevel) {
		t.Error("Expected debug level to be enabled")
	}
}

func TestSetGlobal(t *testing.T) {
	prev := Global()
	defer SetGlobal(prev)

	logger := NewNoOpLogger()
	SetGlobal(logger)
	if L() != logger {
		t.Error("Expected L() to return the logger passed to SetGlobal")
	}

	SetGlobal(nil)
	if Global() == nil {
		t.Error("Expected SetGlobal(nil) to install a no-op logger")
	}
}

func TestForSession(t *testing.T) {
	logger := NewNoOpLogger().ForSession("sess-1", "+254700000000", "1*1234")
	if logger == nil {
		t.Fatal("ForSession returned nil")
	}
}
