package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"kazichain-ussd/pkg/cache"
)

func newTestStore(cfg Config) *Store {
	if cfg.Name == "" {
		cfg.Name = "test"
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = time.Hour
	}
	return New(cfg)
}

func TestStore_SetGet(t *testing.T) {
	s := newTestStore(Config{})
	defer s.Close()
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, cache.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}

	value := []byte(`{"authenticated":true}`)
	if err := s.Set(ctx, "session:1", value, 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := s.Get(ctx, "session:1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, value) {
		t.Errorf("Expected %s, got %s", value, got)
	}

	// Callers must not be able to mutate stored bytes.
	got[0] = 'X'
	value[1] = 'X'
	again, _ := s.Get(ctx, "session:1")
	if again[0] != '{' || again[1] != '"' {
		t.Errorf("Stored value was mutated: %s", again)
	}
}

func TestStore_InvalidInput(t *testing.T) {
	s := newTestStore(Config{})
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "", []byte("x"), 0); !errors.Is(err, cache.ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}
	if err := s.Set(ctx, "k", nil, 0); !errors.Is(err, cache.ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue, got %v", err)
	}
	if _, err := s.Get(ctx, "bad key"); err == nil {
		t.Error("Expected error for key with space")
	}
}

func TestStore_Expiry(t *testing.T) {
	s := newTestStore(Config{})
	defer s.Close()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	if err := s.Set(ctx, "session:1", []byte("a"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if n, _ := s.Len(ctx); n != 1 {
		t.Errorf("Expected 1 entry, got %d", n)
	}

	now = now.Add(2 * time.Minute)
	if _, err := s.Get(ctx, "session:1"); !errors.Is(err, cache.ErrKeyNotFound) {
		t.Errorf("Expected expired entry to miss, got %v", err)
	}
	if n, _ := s.Len(ctx); n != 0 {
		t.Errorf("Expected 0 entries, got %d", n)
	}
}

func TestStore_Sweep(t *testing.T) {
	s := newTestStore(Config{})
	defer s.Close()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }
	s.Set(ctx, "a", []byte("1"), time.Second)
	s.Set(ctx, "b", []byte("2"), time.Hour)

	now = now.Add(time.Minute)
	s.removeExpired()

	s.mu.RLock()
	_, hasA := s.data["a"]
	_, hasB := s.data["b"]
	s.mu.RUnlock()
	if hasA || !hasB {
		t.Errorf("Expected only b to survive the sweep, a=%v b=%v", hasA, hasB)
	}
}

func TestStore_MaxTTL(t *testing.T) {
	s := newTestStore(Config{LayerConfig: cache.LayerConfig{Name: "t", DefaultTTL: time.Minute, MaxTTL: 2 * time.Minute}})
	defer s.Close()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }
	s.Set(ctx, "k", []byte("v"), time.Hour)

	now = now.Add(3 * time.Minute)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, cache.ErrKeyNotFound) {
		t.Errorf("Expected TTL to be capped, got %v", err)
	}
}

func TestStore_LRUEviction(t *testing.T) {
	s := newTestStore(Config{MaxSize: 2})
	defer s.Close()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	s.Set(ctx, "a", []byte("1"), 0)
	now = now.Add(time.Second)
	s.Set(ctx, "b", []byte("2"), 0)
	now = now.Add(time.Second)
	s.Get(ctx, "a")
	now = now.Add(time.Second)
	s.Set(ctx, "c", []byte("3"), 0)

	if _, err := s.Get(ctx, "b"); err == nil {
		t.Error("Expected b to be evicted")
	}
	if _, err := s.Get(ctx, "a"); err != nil {
		t.Errorf("Expected a to survive, got %v", err)
	}

	// Overwriting an existing key must not evict anything.
	s.Set(ctx, "a", []byte("9"), 0)
	if n, _ := s.Len(ctx); n != 2 {
		t.Errorf("Expected 2 entries, got %d", n)
	}
}

func TestStore_EvictionSkipsRetained(t *testing.T) {
	s := newTestStore(Config{
		MaxSize: 2,
		Retain: func(key string, value []byte) bool {
			return string(value) == "keep"
		},
	})
	defer s.Close()
	ctx := context.Background()

	s.Set(ctx, "locked", []byte("keep"), 0)
	s.Set(ctx, "idle", []byte("1"), 0)
	if err := s.Set(ctx, "new", []byte("2"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := s.Get(ctx, "locked"); err != nil {
		t.Errorf("Expected retained entry to survive, got %v", err)
	}
	if _, err := s.Get(ctx, "idle"); !errors.Is(err, cache.ErrKeyNotFound) {
		t.Errorf("Expected idle entry to be evicted, got %v", err)
	}

	// Only retained entries left: the layer refuses new keys.
	s.Set(ctx, "new", []byte("keep"), 0)
	if err := s.Set(ctx, "another", []byte("3"), 0); !errors.Is(err, ErrFull) {
		t.Errorf("Expected ErrFull, got %v", err)
	}
	if !errors.Is(ErrFull, cache.ErrLayerUnavailable) {
		t.Error("Expected ErrFull to classify as unavailable")
	}
	if n, _ := s.Len(ctx); n != 2 {
		t.Errorf("Expected 2 entries, got %d", n)
	}
}

func TestStore_EvictionPrefersExpiredRetained(t *testing.T) {
	s := newTestStore(Config{
		MaxSize: 2,
		Retain:  func(key string, value []byte) bool { return true },
	})
	defer s.Close()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }
	s.Set(ctx, "old", []byte("1"), time.Second)
	s.Set(ctx, "live", []byte("2"), time.Hour)

	now = now.Add(time.Minute)
	if err := s.Set(ctx, "new", []byte("3"), time.Hour); err != nil {
		t.Fatalf("Expected expired entry to make room, got %v", err)
	}
	if _, err := s.Get(ctx, "live"); err != nil {
		t.Errorf("Expected live entry to survive, got %v", err)
	}
}

func TestStore_EvictionAtScale(t *testing.T) {
	s := newTestStore(Config{MaxSize: 1000})
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 5000; i++ {
		if err := s.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), 0); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if n, _ := s.Len(ctx); n != 1000 {
		t.Errorf("Expected 1000 entries, got %d", n)
	}
	if _, err := s.Get(ctx, "k4999"); err != nil {
		t.Errorf("Expected newest key present, got %v", err)
	}
	if _, err := s.Get(ctx, "k0"); err == nil {
		t.Error("Expected oldest key evicted")
	}

	s.mu.RLock()
	listLen := s.lru.Len()
	s.mu.RUnlock()
	if listLen != 1000 {
		t.Errorf("Expected recency list to track 1000 entries, got %d", listLen)
	}
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(Config{})
	defer s.Close()
	ctx := context.Background()

	s.Set(ctx, "k", []byte("v"), 0)
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("Expected deleting a missing key to succeed, got %v", err)
	}
	if _, err := s.Get(ctx, "k"); err == nil {
		t.Error("Expected miss after delete")
	}
}

func TestStore_Concurrent(t *testing.T) {
	s := newTestStore(Config{})
	defer s.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("session:%d", i%5)
			s.Set(ctx, key, []byte{byte(i)}, 0)
			s.Get(ctx, key)
			s.Len(ctx)
		}(i)
	}
	wg.Wait()

	if n, _ := s.Len(ctx); n != 5 {
		t.Errorf("Expected 5 keys, got %d", n)
	}
}

func TestStore_CloseIdempotent(t *testing.T) {
	s := newTestStore(Config{})
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}
