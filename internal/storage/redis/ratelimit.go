// Package redis provides a distributed sliding-window attempt limiter backed
// by redis sorted sets, for deployments running more than one gateway
// replica.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// Limiter implements the gateway's AttemptLimiter contract on a redis sorted
// set per identifier: members are attempt markers scored by unix
// milliseconds, pruned to the trailing window on every check.
type Limiter struct {
	client      *redis.Client
	window      time.Duration
	maxAttempts int
	prefix      string
}

// NewLimiter builds a Limiter on client.
func NewLimiter(client *redis.Client, window time.Duration, maxAttempts int) *Limiter {
	return &Limiter{
		client:      client,
		window:      window,
		maxAttempts: maxAttempts,
		prefix:      "authgw:attempts:",
	}
}

// Dial connects to the given redis address and verifies the connection.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Allow records an attempt for identifier and reports whether it is admitted,
// along with the in-window attempt count.
func (l *Limiter) Allow(ctx context.Context, identifier string) (bool, int, error) {
	key := l.prefix + identifier
	now := time.Now()
	cutoff := now.Add(-l.window).UnixMilli()

	pruneAndCount := l.client.TxPipeline()
	pruneAndCount.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff, 10))
	countCmd := pruneAndCount.ZCard(ctx, key)
	if _, err := pruneAndCount.Exec(ctx); err != nil {
		return false, 0, err
	}

	count := int(countCmd.Val())
	if count >= l.maxAttempts {
		return false, count, nil
	}

	record := l.client.TxPipeline()
	record.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})
	// Keys expire on their own once idle past the window, so no sweep is
	// needed for this backend.
	record.Expire(ctx, key, l.window+time.Hour)
	if _, err := record.Exec(ctx); err != nil {
		return false, count, err
	}

	return true, count + 1, nil
}
