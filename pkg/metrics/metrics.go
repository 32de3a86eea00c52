// Package metrics defines the counters and timings the USSD server reports.
package metrics

import (
	"time"
)

// Collector records USSD server metrics. Implementations must be safe for
// concurrent use.
type Collector interface {
	// Menu engine
	RecordCallback(branch, outcome string, duration time.Duration)
	RecordAuthFailure(branch string)
	RecordLockout(branch string)
	RecordTransfer(outcome string, duration time.Duration)

	// Session store
	RecordSessionOp(layer, op string, success bool, duration time.Duration)

	// Circuit breakers (session layer, payment, SMS)
	RecordCircuitState(name string, state CircuitState)

	// Notification dispatcher
	RecordQueueDepth(queue string, depth int)
	RecordNotificationDropped(queue string)
	RecordNotification(queue string, success bool, attempts int, duration time.Duration)

	// HTTP
	RecordHTTPRequest(route, method string, status int, duration time.Duration)
}

// Callback outcomes.
const (
	OutcomeContinue = "con"
	OutcomeEnd      = "end"
	OutcomeError    = "error"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector discards everything.
type NoOpCollector struct{}

func (NoOpCollector) RecordCallback(branch, outcome string, duration time.Duration) {}

func (NoOpCollector) RecordAuthFailure(branch string) {}

func (NoOpCollector) RecordLockout(branch string) {}

func (NoOpCollector) RecordTransfer(outcome string, duration time.Duration) {}

func (NoOpCollector) RecordSessionOp(layer, op string, success bool, duration time.Duration) {}

func (NoOpCollector) RecordCircuitState(name string, state CircuitState) {}

func (NoOpCollector) RecordQueueDepth(queue string, depth int) {}

func (NoOpCollector) RecordNotificationDropped(queue string) {}

func (NoOpCollector) RecordNotification(queue string, success bool, attempts int, duration time.Duration) {}

func (NoOpCollector) RecordHTTPRequest(route, method string, status int, duration time.Duration) {}

var _ Collector = NoOpCollector{}
