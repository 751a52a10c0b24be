package repository

import (
	"context"
	"sync"
	"time"

	"dayplan/internal/models"
)

// MemoryRepository is the single-process stand-in for Redis.
type MemoryRepository struct {
	mu          sync.Mutex
	locks       map[string]memoryLock
	deadLetters []models.SyncQueueEntry
	rateLimits  sync.Map
	seq         uint64
	now         func() time.Time
}

type memoryLock struct {
	token     uint64
	expiresAt time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{locks: make(map[string]memoryLock), now: time.Now}
}

func (r *MemoryRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if held, ok := r.locks[key]; ok && now.Before(held.expiresAt) {
		return nil, false, nil
	}
	r.seq++
	token := r.seq
	r.locks[key] = memoryLock{token: token, expiresAt: now.Add(ttl)}

	release := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if held, ok := r.locks[key]; ok && held.token == token {
			delete(r.locks, key)
		}
	}
	return release, true, nil
}

func (r *MemoryRepository) PushDeadLetter(ctx context.Context, entry *models.SyncQueueEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deadLetters = append([]models.SyncQueueEntry{*entry}, r.deadLetters...)
	if len(r.deadLetters) > deadLetterCap {
		r.deadLetters = r.deadLetters[:deadLetterCap]
	}
	return nil
}

func (r *MemoryRepository) DeadLetters(ctx context.Context, limit int) ([]models.SyncQueueEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.deadLetters) {
		limit = len(r.deadLetters)
	}
	return append([]models.SyncQueueEntry(nil), r.deadLetters[:limit]...), nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.now()
	val, ok := r.rateLimits.Load(key)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(key, entry)
	return entry.count <= limit, nil
}
