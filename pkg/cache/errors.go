package cache

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrKeyNotFound      = errors.New("cache: key not found")
	ErrInvalidKey       = errors.New("cache: invalid key")
	ErrInvalidValue     = errors.New("cache: invalid value")
	ErrLayerUnavailable = errors.New("cache: layer unavailable")
	ErrTimeout          = errors.New("cache: operation timeout")
	ErrCircuitOpen      = errors.New("cache: circuit breaker open")
)

// IsNotFound reports whether err is a cache miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsTimeout reports whether err is a layer timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsCircuitOpen reports whether err came from an open breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// ClassifyError returns a short label for err, used as a metrics label.
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_breaker_open"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrKeyNotFound):
		return "key_not_found"
	case errors.Is(err, ErrLayerUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ErrInvalidValue):
		return "invalid_value"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "connection", "connect", "dial"):
		return "connection"
	case containsAny(msg, "marshal", "unmarshal", "decode", "encode"):
		return "serialization"
	case strings.Contains(msg, "redis"):
		return "backend"
	default:
		return "other"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// WrapError annotates err with the layer and operation.
func WrapError(err error, layer, op string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("cache layer %s %s: %w", layer, op, err)
}
