// Package cache keeps recently assembled observations in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/smartcity/aqforecast/internal/domain"
)

const keyPrefix = "aq:observation:"

// Stats counts cache lookups
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
}

// ObservationCache stores the latest observation response per location with a TTL
type ObservationCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger logrus.FieldLogger

	hits, misses, sets atomic.Int64
}

// NewObservationCache creates a Redis-backed observation cache
func NewObservationCache(client *redis.Client, ttl time.Duration, logger logrus.FieldLogger) *ObservationCache {
	return &ObservationCache{
		redis:  client,
		ttl:    ttl,
		logger: logger.WithField("component", "observation_cache"),
	}
}

func key(locationID int64) string {
	return keyPrefix + strconv.FormatInt(locationID, 10)
}

// Get returns the cached response for a location.
// Redis and decode errors are logged and reported as a miss.
func (c *ObservationCache) Get(ctx context.Context, locationID int64) (domain.ObservationResponse, bool) {
	data, err := c.redis.Get(ctx, key(locationID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("location_id", locationID).Warn("Redis get failed")
		}
		c.misses.Add(1)
		return domain.ObservationResponse{}, false
	}

	var resp domain.ObservationResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.WithError(err).WithField("location_id", locationID).Warn("Discarding undecodable cache entry")
		c.misses.Add(1)
		return domain.ObservationResponse{}, false
	}
	c.hits.Add(1)
	return resp, true
}

// Set stores a response under the location's key
func (c *ObservationCache) Set(ctx context.Context, locationID int64, resp domain.ObservationResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("cache: failed to encode observation: %w", err)
	}
	if err := c.redis.Set(ctx, key(locationID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: failed to store observation: %w", err)
	}
	c.sets.Add(1)
	return nil
}

// Invalidate drops the cached response for a location
func (c *ObservationCache) Invalidate(ctx context.Context, locationID int64) error {
	return c.redis.Del(ctx, key(locationID)).Err()
}

// Stats returns a snapshot of lookup counters
func (c *ObservationCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Sets: c.sets.Load()}
}

// Connect opens a Redis client and verifies it with a ping
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: failed to connect to redis: %w", err)
	}
	return rdb, nil
}
