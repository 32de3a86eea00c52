package redis

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"kazichain-ussd/pkg/cache"

	"github.com/redis/rueidis/rueidislock"
)

func setupTestRedis(t *testing.T) *Store {
	t.Helper()
	config := DefaultConfig()
	config.Name = "test-redis"
	config.KeyPrefix = "test:ussd:" + t.Name() + ":"
	config.DialTimeout = 2 * time.Second
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Addr = addr
	}

	r, err := New(config)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestNew_NoAddress(t *testing.T) {
	config := DefaultConfig()
	config.Addr = ""
	if _, err := New(config); err == nil {
		t.Error("Expected error without addresses")
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	if config.Name != "redis" {
		t.Errorf("Expected name 'redis', got '%s'", config.Name)
	}
	if config.KeyPrefix != "ussd:" {
		t.Errorf("Expected prefix 'ussd:', got '%s'", config.KeyPrefix)
	}
	if config.DefaultTTL != 5*time.Minute {
		t.Errorf("Expected 5m default TTL, got %v", config.DefaultTTL)
	}
}

func TestStore_SetGetDelete(t *testing.T) {
	r := setupTestRedis(t)
	ctx := context.Background()

	if _, err := r.Get(ctx, "missing"); !errors.Is(err, cache.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}

	value := []byte(`{"pin_attempts":1}`)
	if err := r.Set(ctx, "session:1", value, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := r.Get(ctx, "session:1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, value) {
		t.Errorf("Expected %s, got %s", value, got)
	}

	if n, err := r.Len(ctx); err != nil || n != 1 {
		t.Errorf("Expected 1 key, got %d (%v)", n, err)
	}

	if err := r.Delete(ctx, "session:1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := r.Get(ctx, "session:1"); !errors.Is(err, cache.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound after delete, got %v", err)
	}
}

func TestLocker_ExcludesSecondHolder(t *testing.T) {
	setupTestRedis(t)

	config := DefaultConfig()
	config.KeyPrefix = "test:ussd:" + t.Name() + ":"
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Addr = addr
	}
	locker, err := NewLocker(config)
	if err != nil {
		t.Fatalf("NewLocker failed: %v", err)
	}
	defer locker.Close()

	ctx := context.Background()
	_, release, err := locker.WithContext(ctx, "session:s1")
	if err != nil {
		t.Fatalf("WithContext failed: %v", err)
	}

	if _, _, err := locker.TryWithContext(ctx, "session:s1"); !errors.Is(err, rueidislock.ErrNotLocked) {
		t.Errorf("Expected ErrNotLocked while held, got %v", err)
	}

	release()
	_, release2, err := locker.TryWithContext(ctx, "session:s1")
	if err != nil {
		t.Fatalf("Expected lock after release, got %v", err)
	}
	release2()
}

func TestNewLocker_NoAddress(t *testing.T) {
	config := DefaultConfig()
	config.Addr = ""
	if _, err := NewLocker(config); err == nil {
		t.Error("Expected error without addresses")
	}
}
