// Package redisqueue implements queue.SelectorQueue over Redis lists: one
// durable list per selector key (variantID), since SQS has no native
// selector-based receive. This backs BatchLoadedQueue and
// AllBatchesLoadedQueue (spec.md §9 design notes).
package redisqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"notif/internal/queue"
)

// SelectorQueue pushes/pops per-selector Redis lists under a shared key
// prefix, grounded on the teacher's pack-sourced RedisClient wiring
// (tinywideclouds-go-notification-service's redis.NewClient + Ping).
type SelectorQueue struct {
	rdb        *redis.Client
	keyPrefix  string // e.g. "push:batchloaded" or "push:allbatchesloaded"
}

// New dials addr and fails fast if the connection is bad, matching the
// pack's RedisClient constructor.
func New(ctx context.Context, addr, password string, db int, keyPrefix string) (*SelectorQueue, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &SelectorQueue{rdb: rdb, keyPrefix: keyPrefix}, nil
}

func (s *SelectorQueue) key(selector string) string {
	return s.keyPrefix + ":" + selector
}

// Push appends payload to selector's durable list.
func (s *SelectorQueue) Push(ctx context.Context, selector string, payload []byte) error {
	return s.rdb.RPush(ctx, s.key(selector), payload).Err()
}

// ReceiveNoWait pops the oldest item for selector without blocking,
// mirroring the original JmsClient.receiveNoWait(selector) semantics.
func (s *SelectorQueue) ReceiveNoWait(ctx context.Context, selector string) ([]byte, bool, error) {
	val, err := s.rdb.LPop(ctx, s.key(selector)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *SelectorQueue) Close() error {
	return s.rdb.Close()
}

var _ queue.SelectorQueue = (*SelectorQueue)(nil)
