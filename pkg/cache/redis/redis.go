// Package redis stores session state in Redis through rueidis.
package redis

import (
	"context"
	"fmt"
	"time"

	"kazichain-ussd/pkg/cache"

	"github.com/redis/rueidis"
)

// Store is a cache.Layer backed by a Redis server or cluster.
type Store struct {
	client rueidis.Client
	config Config
}

// Config configures the Redis connection.
type Config struct {
	cache.LayerConfig

	// Addr is the single-node address. ClusterAddrs takes precedence when set.
	Addr         string
	ClusterAddrs []string
	Username     string
	Password     string
	DB           int

	// KeyPrefix namespaces every key written by this layer.
	KeyPrefix string

	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a local single-node configuration.
func DefaultConfig() Config {
	return Config{
		LayerConfig: cache.LayerConfig{
			Name:       "redis",
			DefaultTTL: 5 * time.Minute,
		},
		Addr:         "localhost:6379",
		KeyPrefix:    "ussd:",
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// New connects and pings the server.
func New(config Config) (*Store, error) {
	if config.Name == "" {
		config.Name = "redis"
	}

	option, err := config.clientOption()
	if err != nil {
		return nil, err
	}
	option.MaxFlushDelay = 100 * time.Microsecond

	client, err := rueidis.NewClient(option)
	if err != nil {
		return nil, fmt.Errorf("redis: failed to create client: %w", err)
	}

	dialTimeout := config.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to ping server: %w", err)
	}

	return &Store{client: client, config: config}, nil
}

func (c Config) clientOption() (rueidis.ClientOption, error) {
	var initAddress []string
	switch {
	case len(c.ClusterAddrs) > 0:
		initAddress = c.ClusterAddrs
	case c.Addr != "":
		initAddress = []string{c.Addr}
	default:
		return rueidis.ClientOption{}, fmt.Errorf("redis: no addresses configured")
	}
	return rueidis.ClientOption{
		InitAddress:      initAddress,
		Username:         c.Username,
		Password:         c.Password,
		SelectDB:         c.DB,
		ConnWriteTimeout: c.WriteTimeout,
	}, nil
}

func (r *Store) key(k string) string {
	return r.config.KeyPrefix + k
}

// Get returns the raw stored bytes.
func (r *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}

	resp := r.client.Do(ctx, r.client.B().Get().Key(r.key(key)).Build())
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, cache.ErrKeyNotFound
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	data, err := resp.AsBytes()
	if err != nil {
		return nil, fmt.Errorf("redis get: failed to read response: %w", err)
	}
	return data, nil
}

// Set writes value with an expiry.
func (r *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if value == nil {
		return cache.ErrInvalidValue
	}

	ttl = r.config.EffectiveTTL(ttl)
	if ttl < time.Second {
		ttl = time.Second
	}

	cmd := r.client.B().Set().Key(r.key(key)).Value(rueidis.BinaryString(value)).Ex(ttl).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (r *Store) Delete(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if err := r.client.Do(ctx, r.client.B().Del().Key(r.key(key)).Build()).Error(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// Len counts keys under the prefix with SCAN. In cluster mode only the node
// serving the first slot is scanned.
func (r *Store) Len(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		cmd := r.client.B().Scan().Cursor(cursor).Match(r.config.KeyPrefix + "*").Count(500).Build()
		entry, err := r.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return 0, fmt.Errorf("redis scan: %w", err)
		}
		count += len(entry.Elements)
		cursor = entry.Cursor
		if cursor == 0 {
			return count, nil
		}
	}
}

// Ping checks the connection.
func (r *Store) Ping(ctx context.Context) error {
	if err := r.client.Do(ctx, r.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *Store) Name() string {
	return r.config.Name
}

func (r *Store) Close() error {
	r.client.Close()
	return nil
}

var (
	_ cache.Layer   = (*Store)(nil)
	_ cache.Counter = (*Store)(nil)
	_ cache.Pinger  = (*Store)(nil)
)
