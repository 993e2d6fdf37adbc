// Package redis keeps the bot's session state in Redis and publishes its
// updates for external dashboards. Every call goes through a CircuitBreaker
// so a Redis outage never stalls the trading loop.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultPrefix   = "niftybot"
	defaultStateTTL = 7 * 24 * time.Hour
	opTimeout       = 2 * time.Second
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Prefix   string // key prefix, default "niftybot"

	MaxFailures  int           // breaker trips after this many consecutive errors (default 5)
	ResetTimeout time.Duration // breaker half-open delay (default 10s)
}

// Store wraps a Redis client and its circuit breaker.
type Store struct {
	client *goredis.Client
	cb     *CircuitBreaker
	prefix string
}

// New connects to Redis and pings the server.
func New(cfg Config) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 10 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}

	cb := NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout)
	cb.OnStateChange = func(from, to State) {
		log.Printf("[redis] circuit %s -> %s", from, to)
	}

	log.Printf("[redis] connected to %s (prefix=%s)", cfg.Addr, cfg.Prefix)
	return &Store{client: client, cb: cb, prefix: cfg.Prefix}, nil
}

// Client returns the underlying Redis client for health checks.
func (s *Store) Client() *goredis.Client { return s.client }

// Breaker returns the store's circuit breaker.
func (s *Store) Breaker() *CircuitBreaker { return s.cb }

// Ping checks connectivity through the breaker.
func (s *Store) Ping(ctx context.Context) error {
	return s.cb.Execute(func() error {
		return s.client.Ping(ctx).Err()
	})
}

func (s *Store) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
