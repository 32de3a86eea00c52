package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	memmetrics "kazichain-ussd/pkg/metrics/memory"
)

// fakeSender records messages and fails the first failN calls.
type fakeSender struct {
	mu    sync.Mutex
	sent  []Message
	calls int
	failN int
	block chan struct{}
}

func (f *fakeSender) Send(ctx context.Context, msg Message) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failN {
		return errors.New("gateway unavailable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) snapshot() ([]Message, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.sent...), f.calls
}

func TestDispatcher_Delivers(t *testing.T) {
	sender := &fakeSender{}
	collector := memmetrics.NewCollector()
	d := NewDispatcher(sender, DispatcherConfig{Workers: 2, RetryDelay: time.Millisecond}, collector)

	for _, to := range []string{"+254700000001", "+254700000002", "+254700000003"} {
		if err := d.Send(context.Background(), Message{To: to, Body: "hello"}); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	sent, _ := sender.snapshot()
	if len(sent) != 3 {
		t.Fatalf("Expected 3 messages delivered, got %d", len(sent))
	}
	stats := d.Stats()
	if stats.Enqueued != 3 || stats.Delivered != 3 || stats.Failed != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if q := collector.Queue("sms"); q == nil || q.Delivered != 3 {
		t.Errorf("Expected 3 delivered in metrics, got %+v", q)
	}
}

func TestDispatcher_RetriesThenSucceeds(t *testing.T) {
	sender := &fakeSender{failN: 2}
	collector := memmetrics.NewCollector()
	d := NewDispatcher(sender, DispatcherConfig{Workers: 1, RetryDelay: time.Millisecond}, collector)

	d.Send(context.Background(), Message{To: "+254700000001", Body: "receipt"})
	d.Close(context.Background())

	sent, calls := sender.snapshot()
	if len(sent) != 1 || calls != 3 {
		t.Errorf("Expected delivery on third attempt, got %d sent after %d calls", len(sent), calls)
	}
	if q := collector.Queue("sms"); q == nil || q.Attempts != 3 {
		t.Errorf("Expected 3 attempts recorded, got %+v", q)
	}
}

func TestDispatcher_GivesUpAfterMaxAttempts(t *testing.T) {
	sender := &fakeSender{failN: 100}
	d := NewDispatcher(sender, DispatcherConfig{Workers: 1, MaxAttempts: 3, RetryDelay: time.Millisecond}, nil)

	d.Send(context.Background(), Message{To: "+254700000001", Body: "receipt"})
	d.Close(context.Background())

	_, calls := sender.snapshot()
	if calls != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls)
	}
	if stats := d.Stats(); stats.Failed != 1 {
		t.Errorf("Expected 1 failure, got %+v", stats)
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{})}
	collector := memmetrics.NewCollector()
	d := NewDispatcher(sender, DispatcherConfig{Workers: 1, QueueSize: 1}, collector)

	ctx := context.Background()
	var dropped int
	for i := 0; i < 5; i++ {
		if err := d.Send(ctx, Message{To: "+254700000001", Body: "x"}); errors.Is(err, ErrQueueFull) {
			dropped++
		}
	}
	close(sender.block)
	d.Close(ctx)

	if dropped == 0 {
		t.Error("Expected some messages to be dropped")
	}
	if got := d.Stats().Dropped; got != int64(dropped) {
		t.Errorf("Expected %d dropped, got %d", dropped, got)
	}
	if q := collector.Queue("sms"); q == nil || q.Dropped != int64(dropped) {
		t.Errorf("Expected drops in metrics, got %+v", q)
	}
}

func TestDispatcher_RejectsInvalidAndClosed(t *testing.T) {
	d := NewDispatcher(&fakeSender{}, DispatcherConfig{}, nil)

	if err := d.Send(context.Background(), Message{Body: "no recipient"}); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("Expected ErrInvalidMessage, got %v", err)
	}

	d.Close(context.Background())
	if err := d.Send(context.Background(), Message{To: "+254700000001", Body: "late"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Errorf("Expected second Close to be a no-op, got %v", err)
	}
}

func TestDispatcher_CloseDeadlineAbortsRetries(t *testing.T) {
	sender := &fakeSender{failN: 100}
	d := NewDispatcher(sender, DispatcherConfig{Workers: 1, MaxAttempts: 3, RetryDelay: time.Hour}, nil)
	d.Send(context.Background(), Message{To: "+254700000001", Body: "x"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := d.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Expected Close to return promptly")
	}
}
