package resilience

import (
	"context"
	"errors"
	"time"

	"kazichain-ussd/pkg/cache"
	"kazichain-ussd/pkg/logging"
	"kazichain-ussd/pkg/metrics"

	"go.uber.org/zap"
)

// ResilientLayer wraps a cache.Layer with a Guard and records per-operation
// session metrics. Cache misses never trip the breaker.
type ResilientLayer struct {
	layer   cache.Layer
	guard   *Guard
	metrics metrics.Collector
	logger  *logging.Logger
}

// NewResilientLayer wraps layer.
func NewResilientLayer(layer cache.Layer, config Config, collector metrics.Collector) *ResilientLayer {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	config.Ignore = cache.IsNotFound

	return &ResilientLayer{
		layer:   layer,
		guard:   NewGuard("session-"+layer.Name(), config, collector),
		metrics: collector,
		logger:  logging.Global().Named("resilience").Named(layer.Name()),
	}
}

func (rl *ResilientLayer) Name() string {
	return rl.layer.Name()
}

// Guard exposes the breaker for status reporting.
func (rl *ResilientLayer) Guard() *Guard {
	return rl.guard
}

func (rl *ResilientLayer) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	value, err := Do(ctx, rl.guard, "get", func(ctx context.Context) ([]byte, error) {
		return rl.layer.Get(ctx, key)
	})
	rl.metrics.RecordSessionOp(rl.layer.Name(), "get", err == nil || cache.IsNotFound(err), time.Since(start))
	if err != nil {
		return nil, rl.translate("get", key, err)
	}
	return value, nil
}

func (rl *ResilientLayer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := rl.guard.Execute(ctx, "set", func(ctx context.Context) error {
		return rl.layer.Set(ctx, key, value, ttl)
	})
	rl.metrics.RecordSessionOp(rl.layer.Name(), "set", err == nil, time.Since(start))
	return rl.translate("set", key, err)
}

func (rl *ResilientLayer) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := rl.guard.Execute(ctx, "delete", func(ctx context.Context) error {
		return rl.layer.Delete(ctx, key)
	})
	rl.metrics.RecordSessionOp(rl.layer.Name(), "delete", err == nil, time.Since(start))
	return rl.translate("delete", key, err)
}

// Len delegates to the wrapped layer when it can count entries.
func (rl *ResilientLayer) Len(ctx context.Context) (int, error) {
	counter, ok := rl.layer.(cache.Counter)
	if !ok {
		return 0, errors.New("resilience: layer " + rl.layer.Name() + " cannot count entries")
	}
	n, err := Do(ctx, rl.guard, "len", counter.Len)
	return n, rl.translate("len", "", err)
}

// Ping delegates to the wrapped layer when it has a remote backend.
func (rl *ResilientLayer) Ping(ctx context.Context) error {
	pinger, ok := rl.layer.(cache.Pinger)
	if !ok {
		return nil
	}
	return rl.translate("ping", "", rl.guard.Execute(ctx, "ping", pinger.Ping))
}

func (rl *ResilientLayer) Close() error {
	return rl.layer.Close()
}

// translate maps guard errors onto the cache sentinels and logs faults.
func (rl *ResilientLayer) translate(op, key string, err error) error {
	switch {
	case err == nil:
		return nil
	case cache.IsNotFound(err):
		return err
	case errors.Is(err, ErrCircuitOpen):
		return cache.ErrCircuitOpen
	case errors.Is(err, ErrTimeout):
		return cache.ErrTimeout
	}
	rl.logger.Error("session layer operation failed",
		zap.String("operation", op),
		zap.String("key", key),
		zap.String("error_type", cache.ClassifyError(err)),
		zap.Error(err),
	)
	return err
}

var (
	_ cache.Layer   = (*ResilientLayer)(nil)
	_ cache.Counter = (*ResilientLayer)(nil)
	_ cache.Pinger  = (*ResilientLayer)(nil)
)
