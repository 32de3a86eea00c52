// Package session keeps ephemeral USSD session state in a cache layer.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"kazichain-ussd/pkg/cache"
	"kazichain-ussd/pkg/logging"

	"go.uber.org/zap"
)

// DefaultTTL is the inactivity timeout after which a session is forgotten.
const DefaultTTL = 5 * time.Minute

var (
	ErrInvalidSessionID = errors.New("session: invalid session id")
	ErrLockUnavailable  = errors.New("session: lock unavailable")
)

// Locker serializes updates across processes sharing one layer.
// rueidislock.Locker satisfies it.
type Locker interface {
	WithContext(ctx context.Context, name string) (context.Context, context.CancelFunc, error)
}

// Store loads, mutates and saves session state. Updates to one session are
// serialized; different sessions proceed in parallel.
type Store struct {
	layer  cache.Layer
	keys   *cache.KeyPattern
	ttl    time.Duration
	now    func() time.Time
	logger *logging.Logger
	locker Locker

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewStore creates a store over layer. A non-positive ttl uses DefaultTTL.
func NewStore(layer cache.Layer, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		layer:  layer,
		keys:   cache.NewKeyPattern("session", ":"),
		ttl:    ttl,
		now:    time.Now,
		logger: logging.Global().Named("session"),
		locks:  make(map[string]*keyLock),
	}
}

// WithLocker makes Update also hold a cross-process lock on the session.
// Without one, updates are serialized within this process only.
func (s *Store) WithLocker(l Locker) *Store {
	s.locker = l
	return s
}

// TTL returns the inactivity timeout.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &keyLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

func (s *Store) key(id string) (string, error) {
	if id == "" {
		return "", ErrInvalidSessionID
	}
	key, err := s.keys.Key(id)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSessionID, err)
	}
	return key, nil
}

// load returns the stored state or a fresh one.
func (s *Store) load(ctx context.Context, key string) (State, error) {
	data, err := s.layer.Get(ctx, key)
	if cache.IsNotFound(err) {
		now := s.now()
		return State{CreatedAt: now, UpdatedAt: now}, nil
	}
	if err != nil {
		s.degraded("get", err)
		return State{}, cache.WrapError(err, s.layer.Name(), "get")
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("discarding undecodable session state", zap.String("key", key), zap.Error(err))
		now := s.now()
		return State{CreatedAt: now, UpdatedAt: now}, nil
	}
	return st, nil
}

func (s *Store) save(ctx context.Context, key string, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := s.layer.Set(ctx, key, data, s.ttl); err != nil {
		s.degraded("set", err)
		return cache.WrapError(err, s.layer.Name(), "set")
	}
	return nil
}

func (s *Store) degraded(op string, err error) {
	if cache.IsCircuitOpen(err) || cache.IsTimeout(err) {
		s.logger.Warn("session backend degraded",
			zap.String("layer", s.layer.Name()),
			zap.String("operation", op),
			zap.Error(err),
		)
	}
}

// Update runs fn on the session's state under its lock and saves the result
// with a refreshed TTL. The state is saved even when fn returns an error, so
// mutations made before a failure (such as consuming an OTP) stick.
func (s *Store) Update(ctx context.Context, id string, fn func(*State) error) error {
	key, err := s.key(id)
	if err != nil {
		return err
	}

	unlock := s.lock(id)
	defer unlock()

	if s.locker != nil {
		lctx, release, err := s.locker.WithContext(ctx, key)
		if err != nil {
			s.logger.Warn("session lock not acquired", zap.String("key", key), zap.Error(err))
			return fmt.Errorf("%w: %w", ErrLockUnavailable, err)
		}
		defer release()
		ctx = lctx
	}

	st, err := s.load(ctx, key)
	if err != nil {
		return err
	}

	fnErr := fn(&st)
	st.UpdatedAt = s.now()

	if err := s.save(ctx, key, st); err != nil {
		if fnErr != nil {
			return errors.Join(fnErr, err)
		}
		return err
	}
	return fnErr
}

// Get returns the session state and whether it exists.
func (s *Store) Get(ctx context.Context, id string) (State, bool, error) {
	key, err := s.key(id)
	if err != nil {
		return State{}, false, err
	}

	data, err := s.layer.Get(ctx, key)
	if cache.IsNotFound(err) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("session: get: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, false, fmt.Errorf("session: decode: %w", err)
	}
	return st, true, nil
}

// Delete forgets a session.
func (s *Store) Delete(ctx context.Context, id string) error {
	key, err := s.key(id)
	if err != nil {
		return err
	}

	unlock := s.lock(id)
	defer unlock()

	if err := s.layer.Delete(ctx, key); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

// Len returns the number of live sessions, or -1 if the layer cannot count.
func (s *Store) Len(ctx context.Context) (int, error) {
	counter, ok := s.layer.(cache.Counter)
	if !ok {
		return -1, nil
	}
	return counter.Len(ctx)
}

// Close closes the underlying layer.
func (s *Store) Close() error {
	return s.layer.Close()
}
