package cache

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"ErrKeyNotFound", ErrKeyNotFound, true},
		{"wrapped", WrapError(ErrKeyNotFound, "memory", "get"), true},
		{"other", ErrInvalidKey, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.expected {
				t.Errorf("IsNotFound(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestIsTimeoutAndCircuitOpen(t *testing.T) {
	if !IsTimeout(fmt.Errorf("session load: %w", ErrTimeout)) {
		t.Error("Expected wrapped ErrTimeout to be a timeout")
	}
	if IsTimeout(errors.New("network timeout")) {
		t.Error("Expected plain error not to be a timeout")
	}
	if !IsCircuitOpen(WrapError(ErrCircuitOpen, "redis", "set")) {
		t.Error("Expected wrapped ErrCircuitOpen to match")
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{nil, "none"},
		{ErrCircuitOpen, "circuit_breaker_open"},
		{WrapError(ErrTimeout, "redis", "get"), "timeout"},
		{ErrKeyNotFound, "key_not_found"},
		{ErrLayerUnavailable, "unavailable"},
		{ErrInvalidKey, "invalid_key"},
		{errors.New("dial tcp 127.0.0.1:6379: Connection refused"), "connection"},
		{errors.New("json: cannot unmarshal string"), "serialization"},
		{errors.New("redis: READONLY"), "backend"},
		{errors.New("boom"), "other"},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.expected {
			t.Errorf("ClassifyError(%v) = %s, want %s", tt.err, got, tt.expected)
		}
	}
}

func TestWrapError(t *testing.T) {
	if WrapError(nil, "memory", "get") != nil {
		t.Error("Expected nil for nil error")
	}
	err := WrapError(ErrKeyNotFound, "redis", "get")
	if err.Error() != "cache layer redis get: cache: key not found" {
		t.Errorf("Unexpected message: %s", err)
	}
}
