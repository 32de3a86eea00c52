package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"kazichain-ussd/pkg/logging"
	"kazichain-ussd/pkg/metrics"

	"go.uber.org/zap"
)

// DispatcherConfig configures queueing and retries.
type DispatcherConfig struct {
	// Name labels metrics (default "sms").
	Name string

	// QueueSize bounds pending messages (default 1000).
	QueueSize int

	// Workers is the number of delivery goroutines (default 2).
	Workers int

	// MaxAttempts per message (default 3).
	MaxAttempts int

	// RetryDelay is multiplied by the attempt number between tries (default 2s).
	RetryDelay time.Duration

	// MaxWaitTime is how long Send waits on a full queue before dropping.
	// Zero drops immediately.
	MaxWaitTime time.Duration
}

func (c *DispatcherConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = "sms"
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	} else if c.RetryDelay == 0 {
		c.RetryDelay = 2 * time.Second
	}
}

// Dispatcher is an asynchronous Sender backed by a bounded queue and a
// worker pool. Send returns as soon as the message is queued.
type Dispatcher struct {
	sender  Sender
	config  DispatcherConfig
	metrics metrics.Collector
	logger  *logging.Logger

	queue chan Message
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	// abort cancels in-flight retries once a Close deadline passes.
	abort  context.Context
	cancel context.CancelFunc

	enqueued  int64
	dropped   int64
	delivered int64
	failed    int64

	ticker *time.Ticker
	stop   chan struct{}
}

// NewDispatcher starts workers delivering through sender.
func NewDispatcher(sender Sender, config DispatcherConfig, collector metrics.Collector) *Dispatcher {
	config.applyDefaults()
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}

	abort, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sender:  sender,
		config:  config,
		metrics: collector,
		logger:  logging.Global().Named("notify"),
		queue:   make(chan Message, config.QueueSize),
		abort:   abort,
		cancel:  cancel,
		ticker:  time.NewTicker(5 * time.Second),
		stop:    make(chan struct{}),
	}

	for i := 0; i < config.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	go d.reportDepth()

	return d
}

// Send enqueues msg. It fails only when the message is invalid, the queue
// stays full for MaxWaitTime, or the dispatcher is closed.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.SenderID == "" {
		msg.SenderID = d.senderID()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- msg:
		atomic.AddInt64(&d.enqueued, 1)
		return nil
	default:
	}
	if d.config.MaxWaitTime <= 0 {
		return d.drop(msg)
	}

	timer := time.NewTimer(d.config.MaxWaitTime)
	defer timer.Stop()
	select {
	case d.queue <- msg:
		atomic.AddInt64(&d.enqueued, 1)
		return nil
	case <-timer.C:
		return d.drop(msg)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) senderID() string {
	if s, ok := d.sender.(interface{ DefaultSenderID() string }); ok {
		return s.DefaultSenderID()
	}
	return ""
}

func (d *Dispatcher) drop(msg Message) error {
	atomic.AddInt64(&d.dropped, 1)
	d.metrics.RecordNotificationDropped(d.config.Name)
	d.logger.Warn("notification dropped", zap.String("to", msg.To))
	return ErrQueueFull
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	start := time.Now()
	var err error
	attempts := 0

	for attempts < d.config.MaxAttempts {
		attempts++
		err = d.sender.Send(d.abort, msg)
		if err == nil || errors.Is(err, ErrInvalidMessage) {
			break
		}
		d.logger.Warn("notification attempt failed",
			zap.String("to", msg.To),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
		if attempts == d.config.MaxAttempts {
			break
		}

		timer := time.NewTimer(d.config.RetryDelay * time.Duration(attempts))
		select {
		case <-timer.C:
		case <-d.abort.Done():
			timer.Stop()
			attempts = d.config.MaxAttempts
		}
	}

	success := err == nil
	d.metrics.RecordNotification(d.config.Name, success, attempts, time.Since(start))
	if success {
		atomic.AddInt64(&d.delivered, 1)
		return
	}
	atomic.AddInt64(&d.failed, 1)
	d.logger.Error("notification failed",
		zap.String("to", msg.To),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
}

func (d *Dispatcher) reportDepth() {
	for {
		select {
		case <-d.ticker.C:
			d.metrics.RecordQueueDepth(d.config.Name, len(d.queue))
		case <-d.stop:
			return
		}
	}
}

// Close stops intake and waits for queued messages to be delivered. When ctx
// expires first, pending retries are abandoned and ctx.Err is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	close(d.stop)
	d.ticker.Stop()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		QueueDepth: len(d.queue),
		Enqueued:   atomic.LoadInt64(&d.enqueued),
		Dropped:    atomic.LoadInt64(&d.dropped),
		Delivered:  atomic.LoadInt64(&d.delivered),
		Failed:     atomic.LoadInt64(&d.failed),
	}
}

var _ Sender = (*Dispatcher)(nil)
