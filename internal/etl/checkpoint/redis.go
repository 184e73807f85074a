package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/ayurfhir/ayurfhir/internal/domain/terminology"
)

// DefaultRedisKey is the hash that holds builder output.
const DefaultRedisKey = "ayurfhir:mappings:namaste_to_icd11"

// RedisArtifact stores records as JSON values in a single hash, one field
// per source term key.
type RedisArtifact struct {
	client *redis.Client
	hash   string

	mu   sync.Mutex
	keys map[terminology.Key]struct{}
}

// OpenRedis connects using a redis:// URL and loads the keys already held.
func OpenRedis(ctx context.Context, url, hash string) (*RedisArtifact, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	a, err := NewRedis(ctx, client, hash)
	if err != nil {
		client.Close()
		return nil, err
	}
	return a, nil
}

// NewRedis wraps an existing client.
func NewRedis(ctx context.Context, client *redis.Client, hash string) (*RedisArtifact, error) {
	if hash == "" {
		hash = DefaultRedisKey
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	a := &RedisArtifact{client: client, hash: hash, keys: make(map[terminology.Key]struct{})}
	recs, err := a.Records(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		a.keys[rec.Key()] = struct{}{}
	}
	return a, nil
}

func (a *RedisArtifact) Contains(key terminology.Key) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.keys[key]
	return ok
}

func (a *RedisArtifact) Append(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if err := a.client.HSet(ctx, a.hash, rec.Key().String(), data).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", a.hash, err)
	}

	a.mu.Lock()
	a.keys[rec.Key()] = struct{}{}
	a.mu.Unlock()
	return nil
}

func (a *RedisArtifact) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.keys)
}

// Records returns every stored record ordered by key.
func (a *RedisArtifact) Records(ctx context.Context) ([]Record, error) {
	vals, err := a.client.HGetAll(ctx, a.hash).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", a.hash, err)
	}

	fields := make([]string, 0, len(vals))
	for f := range vals {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	out := make([]Record, 0, len(fields))
	for _, f := range fields {
		var rec Record
		if err := json.Unmarshal([]byte(vals[f]), &rec); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", f, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (a *RedisArtifact) Close() error {
	return a.client.Close()
}
