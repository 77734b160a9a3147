package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HatiCode/plugcast/pkg/models"
)

type modelEntry struct {
	model    *models.Logistic
	storedAt time.Time
}

// MemoryStore keeps the latest snapshot per resource and cached models in
// process memory. It is safe for concurrent use by multiple goroutines.
//
// If a TTL is configured, a background goroutine removes snapshots and models
// older than the TTL. Use RedisStore when several forecaster instances must
// share the cache.
type MemoryStore struct {
	mu            sync.RWMutex
	snapshots     map[string]Snapshot
	models        map[string]modelEntry
	ttl           time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	stopped       bool
	stopMu        sync.Mutex
}

// NewMemoryStore creates a store whose entries never expire.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]Snapshot),
		models:    make(map[string]modelEntry),
	}
}

// NewMemoryStoreWithTTL creates a store that evicts entries older than ttl,
// checking every cleanupInterval (one minute when <= 0).
//
// Stop must be called when the store is no longer needed.
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("TTL must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	store := &MemoryStore{
		snapshots:     make(map[string]Snapshot),
		models:        make(map[string]modelEntry),
		ttl:           ttl,
		cleanupTicker: time.NewTicker(cleanupInterval),
		stopCleanup:   make(chan struct{}),
		cleanupDone:   make(chan struct{}),
	}

	go store.runCleanup()

	return store
}

// Stop shuts down the cleanup goroutine and waits for it to exit.
// Safe to call more than once, and on stores without a TTL.
func (s *MemoryStore) Stop() {
	if s.cleanupTicker == nil {
		return
	}

	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	if s.stopped {
		return
	}

	close(s.stopCleanup)
	<-s.cleanupDone
	s.cleanupTicker.Stop()
	s.stopped = true
}

// Close implements io.Closer so callers can release any store the same way.
func (s *MemoryStore) Close() error {
	s.Stop()
	return nil
}

func (s *MemoryStore) runCleanup() {
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.cleanupTicker.C:
			s.cleanup(time.Now())
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup removes entries older than the TTL relative to now.
func (s *MemoryStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl == 0 {
		return
	}

	for resource, snapshot := range s.snapshots {
		if now.Sub(snapshot.GeneratedAt) > s.ttl {
			delete(s.snapshots, resource)
		}
	}
	for key, entry := range s.models {
		if now.Sub(entry.storedAt) > s.ttl {
			delete(s.models, key)
		}
	}
}

// Put stores a snapshot, replacing any previous snapshot for the resource.
func (s *MemoryStore) Put(ctx context.Context, snapshot Snapshot) error {
	if !validResourceName(snapshot.Resource) {
		return fmt.Errorf("invalid resource name %q", snapshot.Resource)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snapshot.Resource] = snapshot
	return nil
}

// GetLatest returns the most recent snapshot for resource. found is false
// when none is stored.
func (s *MemoryStore) GetLatest(ctx context.Context, resource string) (Snapshot, bool, error) {
	select {
	case <-ctx.Done():
		return Snapshot{}, false, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, found := s.snapshots[resource]
	return snapshot, found, nil
}

// PutModel caches a trained model under key.
func (s *MemoryStore) PutModel(ctx context.Context, key string, m *models.Logistic) error {
	if key == "" {
		return fmt.Errorf("model key cannot be empty")
	}
	if m == nil {
		return fmt.Errorf("model cannot be nil")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	weights := make([]float64, len(m.Weights))
	copy(weights, m.Weights)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.models[key] = modelEntry{model: &models.Logistic{Weights: weights}, storedAt: time.Now()}
	return nil
}

// GetModel returns the model cached under key.
func (s *MemoryStore) GetModel(ctx context.Context, key string) (*models.Logistic, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, found := s.models[key]
	if !found {
		return nil, false, nil
	}
	return entry.model, true, nil
}

// Len returns the number of snapshots currently stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// ModelCount returns the number of cached models.
func (s *MemoryStore) ModelCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.models)
}

// Delete removes the snapshot for resource and reports whether one existed.
func (s *MemoryStore) Delete(resource string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.snapshots[resource]
	delete(s.snapshots, resource)
	return existed
}
