package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTreeCache keeps rendered subtrees under tree:{root}:{depth} with a TTL.
// Cache failures are logged and treated as misses.
type RedisTreeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTreeCache parses redisURL and verifies the connection.
func NewRedisTreeCache(redisURL, redisPassword string, ttl time.Duration) (*RedisTreeCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if redisPassword != "" {
		opt.Password = redisPassword
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisTreeCacheWithClient(client, ttl), nil
}

func NewRedisTreeCacheWithClient(client *redis.Client, ttl time.Duration) *RedisTreeCache {
	return &RedisTreeCache{client: client, ttl: ttl}
}

func treeCacheKey(rootID string, depth int) string {
	return fmt.Sprintf("tree:%s:%d", rootID, depth)
}

func (c *RedisTreeCache) Get(ctx context.Context, rootID string, depth int) (*Tree, bool) {
	raw, err := c.client.Get(ctx, treeCacheKey(rootID, depth)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("⚠️ [TREE_CACHE] GET %s failed: %v", treeCacheKey(rootID, depth), err)
		}
		return nil, false
	}
	var tree Tree
	if err := json.Unmarshal(raw, &tree); err != nil {
		log.Printf("⚠️ [TREE_CACHE] corrupt entry %s: %v", treeCacheKey(rootID, depth), err)
		return nil, false
	}
	return &tree, true
}

func (c *RedisTreeCache) Set(ctx context.Context, tree *Tree) {
	raw, err := json.Marshal(tree)
	if err != nil {
		log.Printf("⚠️ [TREE_CACHE] marshal failed for %s: %v", tree.RootID, err)
		return
	}
	if err := c.client.Set(ctx, treeCacheKey(tree.RootID, tree.Depth), raw, c.ttl).Err(); err != nil {
		log.Printf("⚠️ [TREE_CACHE] SET %s failed: %v", treeCacheKey(tree.RootID, tree.Depth), err)
	}
}

func (c *RedisTreeCache) Close() error {
	return c.client.Close()
}
