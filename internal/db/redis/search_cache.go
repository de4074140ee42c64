package redisdb

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"panrag/internal/domain/rag"
	applog "panrag/internal/platform/log"
)

// SearchCache 检索结果 Redis 缓存，实现 rag.QueryCache
type SearchCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
}

// NewClient 连接 Redis 并做一次健康检查
func NewClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewSearchCache 创建检索缓存
func NewSearchCache(rdb *redis.Client, ttlSeconds int) *SearchCache {
	ttl := 5 * time.Minute
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	return &SearchCache{
		redis:  rdb,
		ttl:    ttl,
		prefix: "rag:cache:",
	}
}

// Get 从缓存获取检索结果
func (c *SearchCache) Get(ctx context.Context, query string, topK int) ([]rag.RetrievedChunk, bool) {
	key := c.cacheKey(query, topK)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}

	var chunks []rag.RetrievedChunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		applog.Warn("[RAG/Cache] Failed to unmarshal cached result", "error", err)
		return nil, false
	}

	applog.Debug("[RAG/Cache] Hit", "key", key)
	return chunks, true
}

// Set 写入检索结果到缓存
func (c *SearchCache) Set(ctx context.Context, query string, topK int, chunks []rag.RetrievedChunk) {
	key := c.cacheKey(query, topK)
	data, err := json.Marshal(chunks)
	if err != nil {
		return
	}

	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		applog.Warn("[RAG/Cache] Failed to set cache", "key", key, "error", err)
	}
}

// InvalidateAll 清除所有检索缓存。索引内容变化后调用。
func (c *SearchCache) InvalidateAll(ctx context.Context) {
	pattern := c.prefix + "*"
	iter := c.redis.Scan(ctx, 0, pattern, 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		c.redis.Del(ctx, keys...)
		applog.Info("[RAG/Cache] All cache invalidated", "keys_deleted", len(keys))
	}
}

// cacheKey 生成缓存 key = hash(query + topK)
func (c *SearchCache) cacheKey(query string, topK int) string {
	raw := fmt.Sprintf("%s|%d", query, topK)
	hash := sha256.Sum256([]byte(raw))
	return c.prefix + fmt.Sprintf("%x", hash[:12])
}
