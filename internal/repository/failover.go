package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"dayplan/internal/domain"
	"dayplan/internal/models"

	"github.com/rs/zerolog"
)

// recoveryInterval is how long the primary stays benched after a failure.
const recoveryInterval = time.Minute

// FailoverRepository sends calls to primary (Redis) and falls back to an
// in-process store while primary is unreachable.
type FailoverRepository struct {
	primary  domain.Coordinator
	fallback domain.Coordinator
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverRepository(primary, fallback domain.Coordinator, logger *zerolog.Logger) *FailoverRepository {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the next call should try primary: either it is
// healthy, or it has been down long enough to be tried again.
func (r *FailoverRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Since(r.lastCheck) > recoveryInterval
}

func (r *FailoverRepository) observe(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		if r.isDown.Swap(false) {
			r.logger.Info().Msg("primary coordinator recovered")
		}
		return
	}
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("primary coordinator failed, falling back to memory")
	}
	r.lastCheck = time.Now()
}

func (r *FailoverRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	if r.usePrimary() {
		release, ok, err := r.primary.Acquire(ctx, key, ttl)
		r.observe(err)
		if err == nil {
			return release, ok, nil
		}
	}
	return r.fallback.Acquire(ctx, key, ttl)
}

func (r *FailoverRepository) PushDeadLetter(ctx context.Context, entry *models.SyncQueueEntry) error {
	if r.usePrimary() {
		err := r.primary.PushDeadLetter(ctx, entry)
		r.observe(err)
		if err == nil {
			return nil
		}
	}
	return r.fallback.PushDeadLetter(ctx, entry)
}

// DeadLetters reads from whichever side is active.
func (r *FailoverRepository) DeadLetters(ctx context.Context, limit int) ([]models.SyncQueueEntry, error) {
	if r.usePrimary() {
		entries, err := r.primary.DeadLetters(ctx, limit)
		r.observe(err)
		if err == nil {
			return entries, nil
		}
	}
	return r.fallback.DeadLetters(ctx, limit)
}

func (r *FailoverRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		r.observe(err)
		if err == nil {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
