package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/HatiCode/plugcast/pkg/models"
)

const (
	snapshotKeyPrefix = "plugcast:snapshot:"
	modelKeyPrefix    = "plugcast:model:"
)

// RedisStore implements Store on Redis so several forecaster instances share
// snapshots and trained models. Every key expires after the configured TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
}

type modelRecord struct {
	Weights  []float64 `json:"weights"`
	StoredAt time.Time `json:"storedAt"`
}

// NewRedisStore connects to Redis and verifies the connection with a PING.
//
// Parameters:
//   - addr: Redis server address (e.g., "localhost:6379")
//   - password: Redis password (empty string for no auth)
//   - db: Redis database number (typically 0)
//   - ttl: key expiration (0 uses the default of 30 minutes)
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}

	if ttl == 0 {
		ttl = 30 * time.Minute
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
	}, nil
}

func snapshotKey(resource string) string {
	return snapshotKeyPrefix + resource
}

func modelKey(key string) string {
	return modelKeyPrefix + key
}

// Put stores a snapshot under "plugcast:snapshot:{resource}".
func (r *RedisStore) Put(ctx context.Context, s Snapshot) error {
	if s.Resource == "" {
		return errors.New("resource name required")
	}
	if !validResourceName(s.Resource) {
		return fmt.Errorf("invalid resource name %q: only alphanumeric, dots, hyphens, and underscores allowed", s.Resource)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := r.client.Set(ctx, snapshotKey(s.Resource), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store snapshot in redis: %w", err)
	}

	return nil
}

// GetLatest returns the stored snapshot for resource. A missing key is
// reported as found == false with a nil error.
func (r *RedisStore) GetLatest(ctx context.Context, resource string) (Snapshot, bool, error) {
	if resource == "" {
		return Snapshot{}, false, errors.New("resource name required")
	}

	data, err := r.client.Get(ctx, snapshotKey(resource)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return snapshot, true, nil
}

// PutModel caches model weights under "plugcast:model:{key}".
func (r *RedisStore) PutModel(ctx context.Context, key string, m *models.Logistic) error {
	if key == "" {
		return errors.New("model key required")
	}
	if m == nil {
		return errors.New("model cannot be nil")
	}

	data, err := json.Marshal(modelRecord{Weights: m.Weights, StoredAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	if err := r.client.Set(ctx, modelKey(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store model in redis: %w", err)
	}

	return nil
}

// GetModel returns the model cached under key.
func (r *RedisStore) GetModel(ctx context.Context, key string) (*models.Logistic, bool, error) {
	if key == "" {
		return nil, false, errors.New("model key required")
	}

	data, err := r.client.Get(ctx, modelKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get model from redis: %w", err)
	}

	var rec modelRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal model: %w", err)
	}

	return &models.Logistic{Weights: rec.Weights}, true, nil
}

// Close closes the Redis client connection.
// It is safe to call multiple times (idempotent).
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}

	return err
}

// Ping checks the Redis connection health.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
