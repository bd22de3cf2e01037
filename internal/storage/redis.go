package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "miniapp"

// RedisBackend stores values under "<prefix>:<namespace>:<key>"
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend connects to url and verifies the connection
func NewRedisBackend(url, prefix string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedisBackendWithClient(client, prefix), nil
}

// NewRedisBackendWithClient wraps an existing client
func NewRedisBackendWithClient(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) key(namespace, key string) string {
	return r.prefix + ":" + namespace + ":" + key
}

func (r *RedisBackend) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(namespace, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMissing
	}
	return data, err
}

func (r *RedisBackend) Put(ctx context.Context, namespace, key string, value []byte) error {
	return r.client.Set(ctx, r.key(namespace, key), value, 0).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, namespace, key string) error {
	return r.client.Del(ctx, r.key(namespace, key)).Err()
}

func (r *RedisBackend) List(ctx context.Context, namespace string) ([]string, error) {
	prefix := r.key(namespace, "")
	var keys []string
	seen := make(map[string]bool)

	// SCAN may return a key more than once
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		k := strings.TrimPrefix(iter.Val(), prefix)
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", namespace, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
