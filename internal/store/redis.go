// Package store provides the durable backends behind the coordination
// core's memory and graph store interfaces: a Redis backend for shared
// deployments and a SQLite backend for single-host ones.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oldnordic/LTMC-sub008/internal/coordination"
)

// RedisStore implements coordination.MemoryStore and coordination.GraphStore
// on Redis. Document content lives under doc:<conversation>:<key>; each tag
// maintains an index set tag:<conversation>:<tag> of document keys, and
// retrieval intersects the index sets of every query term. Graph edges are
// appended to links:<source> as JSON records.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 5
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("Connected to Redis at %s", redisURL)

	return &RedisStore{client: client}, nil
}

func docKey(conversationID, key string) string {
	return fmt.Sprintf("doc:%s:%s", conversationID, key)
}

func tagKey(conversationID, tag string) string {
	return fmt.Sprintf("tag:%s:%s", conversationID, tag)
}

// Store persists content under key and indexes it by every tag.
func (s *RedisStore) Store(ctx context.Context, key, content string, tags []string, conversationID string) error {
	pipe := s.client.Pipeline()
	pipe.Set(ctx, docKey(conversationID, key), content, 0)
	for _, tag := range tags {
		pipe.SAdd(ctx, tagKey(conversationID, tag), key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store document %s: %w", key, err)
	}
	return nil
}

// Retrieve returns every document carrying all of the query's tags, in
// stable key order.
func (s *RedisStore) Retrieve(ctx context.Context, query, conversationID string) ([]coordination.Document, error) {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return nil, fmt.Errorf("empty query")
	}

	tagKeys := make([]string, len(terms))
	for i, term := range terms {
		tagKeys[i] = tagKey(conversationID, term)
	}

	keys, err := s.client.SInter(ctx, tagKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query tags %v: %w", terms, err)
	}
	sort.Strings(keys)

	docs := make([]coordination.Document, 0, len(keys))
	for _, key := range keys {
		content, err := s.client.Get(ctx, docKey(conversationID, key)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get document %s: %w", key, err)
		}
		docs = append(docs, coordination.Document{Key: key, Content: content})
	}
	return docs, nil
}

type linkRecord struct {
	Source       string         `json:"source"`
	Target       string         `json:"target"`
	Relationship string         `json:"relationship"`
	Properties   map[string]any `json:"properties"`
}

// Link appends a directed edge record to the source's link list.
func (s *RedisStore) Link(ctx context.Context, source, target, relationship string, properties map[string]any) error {
	data, err := json.Marshal(linkRecord{
		Source:       source,
		Target:       target,
		Relationship: relationship,
		Properties:   properties,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal link record: %w", err)
	}

	if err := s.client.RPush(ctx, fmt.Sprintf("links:%s", source), data).Err(); err != nil {
		return fmt.Errorf("failed to store link %s -> %s: %w", source, target, err)
	}
	return nil
}

// Ping verifies the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	log.Println("Closing Redis connection...")
	return s.client.Close()
}
