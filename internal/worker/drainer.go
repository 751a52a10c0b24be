// Package worker runs the periodic retry-queue drain.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dayplan/internal/domain"
	"dayplan/internal/engine"
	"dayplan/internal/metrics"
	"dayplan/internal/models"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrDrainBusy is returned when another process holds the drain lock.
var ErrDrainBusy = errors.New("sync drain already running")

const (
	drainKey       = "sync-drain"
	defaultLockTTL = 5 * time.Minute
)

// Retrier replays due queue entries.
type Retrier interface {
	RetryFailedOperations(ctx context.Context) (*engine.RetryReport, error)
}

type DrainerConfig struct {
	// Schedule is a cron spec, e.g. "@every 1m" or "*/5 * * * *".
	Schedule string
	LockTTL  time.Duration
	Location *time.Location
}

// Drainer calls RetryFailedOperations on a cron schedule. Passes never
// overlap inside a process; a Locker extends that across processes.
type Drainer struct {
	retrier Retrier
	locker  domain.Locker
	sink    domain.DeadLetterSink
	cfg     DrainerConfig
	logger  zerolog.Logger

	group singleflight.Group
	cron  *cron.Cron
}

// NewDrainer builds a drainer. locker and sink may be nil.
func NewDrainer(retrier Retrier, locker domain.Locker, sink domain.DeadLetterSink, cfg DrainerConfig, logger *zerolog.Logger) *Drainer {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "sync_drainer").Logger()
	}

	return &Drainer{
		retrier: retrier,
		locker:  locker,
		sink:    sink,
		cfg:     cfg,
		logger:  l,
	}
}

// Start registers the cron job and returns immediately. The job runs until
// ctx is cancelled or Stop is called.
func (d *Drainer) Start(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(d.cfg.Location),
		cron.WithLogger(cronLogger{d.logger}),
		cron.WithChain(cron.Recover(cronLogger{d.logger})),
	)
	if _, err := c.AddFunc(d.cfg.Schedule, func() { d.tick(ctx) }); err != nil {
		return fmt.Errorf("invalid drain schedule %q: %w", d.cfg.Schedule, err)
	}
	d.cron = c
	c.Start()
	d.logger.Info().Str("schedule", d.cfg.Schedule).Msg("sync drainer started")

	go func() {
		<-ctx.Done()
		d.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (d *Drainer) Stop() {
	if d.cron == nil {
		return
	}
	<-d.cron.Stop().Done()
	d.logger.Info().Msg("sync drainer stopped")
}

func (d *Drainer) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := d.RunOnce(ctx); err != nil {
		if errors.Is(err, ErrDrainBusy) {
			d.logger.Debug().Msg("drain skipped, lock held elsewhere")
			return
		}
		d.logger.Error().Err(err).Msg("sync drain failed")
	}
}

// RunOnce performs one drain pass. Concurrent callers share the result of
// the pass already in flight.
func (d *Drainer) RunOnce(ctx context.Context) (*engine.RetryReport, error) {
	v, err, _ := d.group.Do(drainKey, func() (interface{}, error) {
		return d.drain(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*engine.RetryReport), nil
}

func (d *Drainer) drain(ctx context.Context) (*engine.RetryReport, error) {
	runID := uuid.NewString()
	logger := d.logger.With().Str("run_id", runID).Logger()

	if d.locker != nil {
		release, ok, err := d.locker.Acquire(ctx, drainKey, d.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire drain lock: %w", err)
		}
		if !ok {
			return nil, ErrDrainBusy
		}
		defer release()
	}

	started := time.Now()
	report, err := d.retrier.RetryFailedOperations(ctx)
	if report == nil {
		return nil, err
	}

	d.deadLetter(ctx, logger, report.FailedEntries)

	if report.Processed > 0 {
		logger.Debug().Dur("took", time.Since(started)).Int("processed", report.Processed).Msg("drain pass finished")
	}
	return report, err
}

func (d *Drainer) deadLetter(ctx context.Context, logger zerolog.Logger, entries []models.SyncQueueEntry) {
	if d.sink == nil {
		return
	}
	for i := range entries {
		entry := &entries[i]
		if pushErr := d.sink.PushDeadLetter(ctx, entry); pushErr != nil {
			logger.Error().Err(pushErr).Int64("entry_id", entry.ID).Msg("dead letter push failed")
			continue
		}
		metrics.IncQueue("dead_letter")
	}
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
