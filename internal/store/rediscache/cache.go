// Copyright 2026 The LendCore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rediscache stores resolved permission grants in Redis.
//
// Entries are keyed by a generation number kept under <prefix>:gen. Any
// authorization mutation bumps the generation, so every older entry becomes
// unreachable at once and simply ages out through its TTL.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lendcore/lendcore/internal/authz"
)

// Options configures the Redis connection
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Connect creates a Redis client and verifies it answers
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("rediscache: ping: %w", err)
	}
	return client, nil
}

// Cache implements authz.PermissionCache
type Cache struct {
	client *redis.Client
	prefix string
}

var _ authz.PermissionCache = (*Cache)(nil)

// New wraps client. An empty prefix defaults to "lendcore:authz".
func New(client *redis.Client, prefix string) *Cache {
	if prefix == "" {
		prefix = "lendcore:authz"
	}
	return &Cache{client: client, prefix: prefix}
}

func (c *Cache) generationKey() string {
	return c.prefix + ":gen"
}

func (c *Cache) entryKey(generation int64, userID string) string {
	return fmt.Sprintf("%s:%d:user:%s", c.prefix, generation, userID)
}

// Generation returns the current generation. A missing key reads as zero.
func (c *Cache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("rediscache: read generation: %w", err)
	}
	return gen, nil
}

// Get loads the grants cached for userID under generation
func (c *Cache) Get(ctx context.Context, generation int64, userID string) ([]authz.Grant, bool, error) {
	raw, err := c.client.Get(ctx, c.entryKey(generation, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("rediscache: get: %w", err)
	}

	var grants []authz.Grant
	if err := json.Unmarshal(raw, &grants); err != nil {
		// a corrupt entry is a miss; the next Set overwrites it
		return nil, false, nil
	}
	return grants, true, nil
}

// Set stores grants for userID under generation. A non-positive ttl stores
// nothing.
func (c *Cache) Set(ctx context.Context, generation int64, userID string, grants []authz.Grant, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if grants == nil {
		grants = []authz.Grant{}
	}
	raw, err := json.Marshal(grants)
	if err != nil {
		return fmt.Errorf("rediscache: encode: %w", err)
	}
	if err := c.client.Set(ctx, c.entryKey(generation, userID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("rediscache: set: %w", err)
	}
	return nil
}

// Dial connects to Redis and wraps the client with opts.Prefix. Close the
// returned cache when done.
func Dial(ctx context.Context, opts Options) (*Cache, error) {
	client, err := Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return New(client, opts.Prefix), nil
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Invalidate bumps the generation
func (c *Cache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		return fmt.Errorf("rediscache: bump generation: %w", err)
	}
	return nil
}
