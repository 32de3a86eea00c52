// Package memory is the in-process session layer.
package memory

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"kazichain-ussd/pkg/cache"
)

// ErrFull is returned by Set when MaxSize is reached and every entry is
// retained.
var ErrFull = fmt.Errorf("%w: memory layer full", cache.ErrLayerUnavailable)

// Store keeps entries in a map with TTL expiry and least-recently-used
// eviction once MaxSize is reached.
type Store struct {
	mu     sync.RWMutex
	data   map[string]*entry
	lru    *list.List // front is most recently used
	config Config
	now    func() time.Time

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
	elem      *list.Element
}

// Config configures the memory layer.
type Config struct {
	cache.LayerConfig

	// MaxSize bounds the number of entries (0 = unlimited).
	MaxSize int

	// CleanupInterval controls how often expired entries are swept.
	CleanupInterval time.Duration

	// Retain, when set, protects live entries from eviction. Expired
	// entries are always evictable.
	Retain func(key string, value []byte) bool
}

// New creates a memory layer and starts its expiry sweeper.
func New(config Config) *Store {
	if config.Name == "" {
		config.Name = "memory"
	}
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = time.Minute
	}

	s := &Store{
		data:          make(map[string]*entry),
		lru:           list.New(),
		config:        config,
		now:           time.Now,
		stopCleanup:   make(chan struct{}),
		cleanupTicker: time.NewTicker(config.CleanupInterval),
	}

	s.wg.Add(1)
	go s.cleanup()

	return s
}

// Get returns a copy of the stored bytes.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return nil, cache.ErrKeyNotFound
	}
	if s.now().After(e.expiresAt) {
		s.removeLocked(e)
		return nil, cache.ErrKeyNotFound
	}
	s.lru.MoveToFront(e.elem)

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores a copy of value.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if value == nil {
		return cache.ErrInvalidValue
	}

	now := s.now()
	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := now.Add(s.config.EffectiveTTL(ttl))
	if e, exists := s.data[key]; exists {
		e.value = stored
		e.expiresAt = expiresAt
		s.lru.MoveToFront(e.elem)
		return nil
	}

	if s.config.MaxSize > 0 && len(s.data) >= s.config.MaxSize && !s.evictLocked(now) {
		return ErrFull
	}

	e := &entry{key: key, value: stored, expiresAt: expiresAt}
	e.elem = s.lru.PushFront(e)
	s.data[key] = e
	return nil
}

// evictLocked drops the least recently used entry that is expired or not
// retained. It reports false when nothing could be dropped.
func (s *Store) evictLocked(now time.Time) bool {
	for el := s.lru.Back(); el != nil; el = el.Prev() {
		e := el.Value.(*entry)
		if now.After(e.expiresAt) || s.config.Retain == nil || !s.config.Retain(e.key, e.value) {
			s.removeLocked(e)
			return true
		}
	}
	return false
}

func (s *Store) removeLocked(e *entry) {
	s.lru.Remove(e.elem)
	delete(s.data, e.key)
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	if e, ok := s.data[key]; ok {
		s.removeLocked(e)
	}
	s.mu.Unlock()
	return nil
}

// Len returns the number of unexpired entries.
func (s *Store) Len(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	n := 0
	for _, e := range s.data {
		if !now.After(e.expiresAt) {
			n++
		}
	}
	return n, nil
}

func (s *Store) Name() string {
	return s.config.Name
}

// Close stops the sweeper and drops all entries.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.cleanupTicker.Stop()
		close(s.stopCleanup)
		s.wg.Wait()

		s.mu.Lock()
		s.data = make(map[string]*entry)
		s.lru.Init()
		s.mu.Unlock()
	})
	return nil
}

func (s *Store) cleanup() {
	defer s.wg.Done()

	for {
		select {
		case <-s.cleanupTicker.C:
			s.removeExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *Store) removeExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, e := range s.data {
		if now.After(e.expiresAt) {
			s.removeLocked(e)
		}
	}
}

var (
	_ cache.Layer   = (*Store)(nil)
	_ cache.Counter = (*Store)(nil)
)
