// Package memory is an in-process metrics.Collector for tests and the /status endpoint.
package memory

import (
	"strconv"
	"sync"
	"time"

	"kazichain-ussd/pkg/metrics"
)

// Collector keeps counters in maps guarded by a single mutex.
type Collector struct {
	mu sync.RWMutex

	callbacks    map[string]int64 // branch|outcome
	authFailures map[string]int64
	lockouts     map[string]int64
	transfers    map[string]int64
	sessionOps   map[string]*OpStats // layer|op
	circuits     map[string]*CircuitStats
	queues       map[string]*QueueStats
	httpRequests map[string]int64 // route|method|status
}

// OpStats counts session store operations.
type OpStats struct {
	Successes int64
	Errors    int64
	Latencies []time.Duration
}

// CircuitStats tracks one breaker.
type CircuitStats struct {
	State metrics.CircuitState
	Opens int64
}

// QueueStats tracks one notification queue.
type QueueStats struct {
	Depth     int
	Dropped   int64
	Delivered int64
	Failed    int64
	Attempts  int64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	c := &Collector{}
	c.reset()
	return c
}

func (c *Collector) reset() {
	c.callbacks = make(map[string]int64)
	c.authFailures = make(map[string]int64)
	c.lockouts = make(map[string]int64)
	c.transfers = make(map[string]int64)
	c.sessionOps = make(map[string]*OpStats)
	c.circuits = make(map[string]*CircuitStats)
	c.queues = make(map[string]*QueueStats)
	c.httpRequests = make(map[string]int64)
}

func (c *Collector) RecordCallback(branch, outcome string, duration time.Duration) {
	c.mu.Lock()
	c.callbacks[branch+"|"+outcome]++
	c.mu.Unlock()
}

func (c *Collector) RecordAuthFailure(branch string) {
	c.mu.Lock()
	c.authFailures[branch]++
	c.mu.Unlock()
}

func (c *Collector) RecordLockout(branch string) {
	c.mu.Lock()
	c.lockouts[branch]++
	c.mu.Unlock()
}

func (c *Collector) RecordTransfer(outcome string, duration time.Duration) {
	c.mu.Lock()
	c.transfers[outcome]++
	c.mu.Unlock()
}

func (c *Collector) RecordSessionOp(layer, op string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := layer + "|" + op
	s, ok := c.sessionOps[key]
	if !ok {
		s = &OpStats{}
		c.sessionOps[key] = s
	}
	if success {
		s.Successes++
	} else {
		s.Errors++
	}
	s.Latencies = append(s.Latencies, duration)
}

func (c *Collector) RecordCircuitState(name string, state metrics.CircuitState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cs, ok := c.circuits[name]
	if !ok {
		cs = &CircuitStats{}
		c.circuits[name] = cs
	}
	if cs.State != metrics.CircuitOpen && state == metrics.CircuitOpen {
		cs.Opens++
	}
	cs.State = state
}

func (c *Collector) queueLocked(queue string) *QueueStats {
	q, ok := c.queues[queue]
	if !ok {
		q = &QueueStats{}
		c.queues[queue] = q
	}
	return q
}

func (c *Collector) RecordQueueDepth(queue string, depth int) {
	c.mu.Lock()
	c.queueLocked(queue).Depth = depth
	c.mu.Unlock()
}

func (c *Collector) RecordNotificationDropped(queue string) {
	c.mu.Lock()
	c.queueLocked(queue).Dropped++
	c.mu.Unlock()
}

func (c *Collector) RecordNotification(queue string, success bool, attempts int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := c.queueLocked(queue)
	if success {
		q.Delivered++
	} else {
		q.Failed++
	}
	q.Attempts += int64(attempts)
}

func (c *Collector) RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	c.mu.Lock()
	c.httpRequests[route+"|"+method+"|"+strconv.Itoa(status)]++
	c.mu.Unlock()
}

// Callbacks returns the count for a branch and outcome.
func (c *Collector) Callbacks(branch, outcome string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.callbacks[branch+"|"+outcome]
}

// AuthFailures returns the incorrect PIN count for branch.
func (c *Collector) AuthFailures(branch string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authFailures[branch]
}

// Lockouts returns the lockout count for branch.
func (c *Collector) Lockouts(branch string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lockouts[branch]
}

// Transfers returns the count for outcome.
func (c *Collector) Transfers(outcome string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transfers[outcome]
}

// HTTPRequests returns the count for a route, method and status.
func (c *Collector) HTTPRequests(route, method string, status int) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.httpRequests[route+"|"+method+"|"+strconv.Itoa(status)]
}

// SessionOp returns a copy of the stats for layer and op, or nil.
func (c *Collector) SessionOp(layer, op string) *OpStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessionOps[layer+"|"+op]
	if !ok {
		return nil
	}
	cp := *s
	cp.Latencies = append([]time.Duration(nil), s.Latencies...)
	return &cp
}

// Circuit returns a copy of the stats for a breaker, or nil.
func (c *Collector) Circuit(name string) *CircuitStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cs, ok := c.circuits[name]
	if !ok {
		return nil
	}
	cp := *cs
	return &cp
}

// Queue returns a copy of the stats for a queue, or nil.
func (c *Collector) Queue(queue string) *QueueStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	q, ok := c.queues[queue]
	if !ok {
		return nil
	}
	cp := *q
	return &cp
}

// Reset clears all collected metrics.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

var _ metrics.Collector = (*Collector)(nil)
