// Package redis provides a distributed-coordination layer for
// multi-process mining client deployments: a cross-process mirror of
// the in-process Submission Gate's per-(address, challenge) lock, and
// a shared hash-rate window so a dashboard or second process can read
// live throughput without scraping every worker process individually.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bardlex/powminer/internal/devfee"
)

// Client wraps Redis operations for distributed mining coordination.
type Client struct {
	rdb *redis.Client
}

var _ devfee.CursorStore = (*Client)(nil)

// Config holds Redis connection configuration.
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewClient creates a new Redis client.
func NewClient(cfg *Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks Redis connectivity.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Submission locking
//
// TryAcquireSubmitLock mirrors internal/gate.Gate's in-process
// per-(address, challenge_id) mutex for deployments running more than
// one mining client process against the same address set: a second
// process holding the same address sees the lock held; internal/gate
// logs a warning in that case and still submits under its in-process
// lock.

// TryAcquireSubmitLock attempts to acquire the distributed submission
// lock for (address, challengeID), held for ttl. Returns false if
// another process already holds it.
func (c *Client) TryAcquireSubmitLock(ctx context.Context, address, challengeID string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("submitlock:%s:%s", address, challengeID)
	ok, err := c.rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire submit lock: %w", err)
	}
	return ok, nil
}

// ReleaseSubmitLock releases a previously acquired submission lock.
func (c *Client) ReleaseSubmitLock(ctx context.Context, address, challengeID string) error {
	key := fmt.Sprintf("submitlock:%s:%s", address, challengeID)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release submit lock: %w", err)
	}
	return nil
}

// Hash-rate tracking

// RecordHashrateSample appends one throughput sample for (address,
// workerID), stored as a sorted set keyed by timestamp so a time
// window query can discard samples outside its range.
func (c *Client) RecordHashrateSample(ctx context.Context, address string, workerID int, hashesPerSecond float64, window time.Duration) error {
	key := fmt.Sprintf("hashrate:%s:%d", address, workerID)
	timestamp := time.Now().Unix()

	member := redis.Z{
		Score:  float64(timestamp),
		Member: hashesPerSecond,
	}

	pipe := c.rdb.Pipeline()
	pipe.ZAdd(ctx, key, member)
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", timestamp-int64(window.Seconds())))
	pipe.Expire(ctx, key, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record hashrate sample: %w", err)
	}

	return nil
}

// Dev-fee cursor cache
//
// LoadCursor/SaveCursor satisfy devfee.CursorStore, giving the
// round-robin draw position a distributed backing beyond the
// single-process in-memory default, so a restarted or second process
// resumes the rotation instead of re-drawing from the start of the
// address list.

// SaveCursor persists the current round-robin offset into the dev-fee
// address list.
func (c *Client) SaveCursor(ctx context.Context, cursor int) error {
	if err := c.rdb.Set(ctx, "devfee:cursor", cursor, 0).Err(); err != nil {
		return fmt.Errorf("failed to save dev-fee cursor: %w", err)
	}
	return nil
}

// LoadCursor retrieves the persisted round-robin offset, or 0 if unset.
func (c *Client) LoadCursor(ctx context.Context) (int, error) {
	val, err := c.rdb.Get(ctx, "devfee:cursor").Int()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load dev-fee cursor: %w", err)
	}
	return val, nil
}
