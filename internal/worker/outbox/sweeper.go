package outbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	dom "github.com/bookingcontrol/booker-slot-svc/internal/domain/slot"
)

// Sweeper is the scheduled delivery path. Three independent ticker
// loops: retry PENDING entries oldest first, age entries past the
// retry budget into FAILED, and purge PUBLISHED entries older than
// the retention window.
type Sweeper struct {
	outbox    dom.OutboxRepository
	publisher dom.EventPublisher
	lock      dom.TaskLock

	pollInterval       time.Duration
	markFailedInterval time.Duration
	cleanupInterval    time.Duration
	publishTimeout     time.Duration
	batchSize          int
	maxRetries         int
	retention          time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started atomic.Bool
}

func NewSweeper(
	outbox dom.OutboxRepository,
	publisher dom.EventPublisher,
	lock dom.TaskLock,
	pollInterval time.Duration,
	markFailedInterval time.Duration,
	cleanupInterval time.Duration,
	publishTimeout time.Duration,
	batchSize int,
	maxRetries int,
	retention time.Duration,
) *Sweeper {
	return &Sweeper{
		outbox:             outbox,
		publisher:          publisher,
		lock:               lock,
		pollInterval:       pollInterval,
		markFailedInterval: markFailedInterval,
		cleanupInterval:    cleanupInterval,
		publishTimeout:     publishTimeout,
		batchSize:          batchSize,
		maxRetries:         maxRetries,
		retention:          retention,
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("sweeper already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	s.worker(s.pollInterval, func() { s.sweep(s.ctx) })
	s.worker(s.markFailedInterval, func() { s.markFailed(s.ctx) })
	s.worker(s.cleanupInterval, func() { s.cleanup(s.ctx) })

	return nil
}

// sweep retries the oldest PENDING entries whose retry budget is not
// exhausted. Per-entry failures only bump the retry count; the batch
// keeps going.
func (s *Sweeper) sweep(ctx context.Context) {
	entries, err := s.outbox.GetPending(ctx, s.maxRetries, s.batchSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get pending outbox entries")
		return
	}

	for _, entry := range entries {
		publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
		err := s.publisher.Publish(publishCtx, entry)
		cancel()

		if err != nil {
			log.Warn().
				Err(err).
				Str("entry_id", entry.ID.String()).
				Int("retry_count", entry.RetryCount).
				Msg("Outbox publish failed")
			if incErr := s.outbox.IncrementRetry(ctx, entry.ID, err.Error()); incErr != nil {
				log.Error().Err(incErr).Str("entry_id", entry.ID.String()).Msg("Failed to increment retry count")
			}
			continue
		}

		if err := s.outbox.MarkPublished(ctx, entry.ID); err != nil {
			log.Error().Err(err).Str("entry_id", entry.ID.String()).Msg("Failed to mark outbox entry published")
		}
	}
}

// markFailed parks entries whose retry count reached the budget. These
// are terminal and only surface through monitoring.
func (s *Sweeper) markFailed(ctx context.Context) {
	n, err := s.outbox.MarkFailedAfterMaxRetries(ctx, s.maxRetries)
	if err != nil {
		log.Error().Err(err).Msg("Failed to mark exhausted outbox entries")
		return
	}
	if n > 0 {
		log.Error().Int64("entries", n).Msg("Outbox entries exhausted retries, manual intervention required")
	}
}

// cleanup runs under the task lock since a full table scan on every
// replica at once is pointless.
func (s *Sweeper) cleanup(ctx context.Context) {
	acquired, err := s.lock.TryAcquire(ctx, "outbox-cleanup", s.cleanupInterval/2)
	if err != nil {
		log.Error().Err(err).Msg("Failed to acquire outbox cleanup lock")
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := s.lock.Release(ctx, "outbox-cleanup"); err != nil {
			log.Error().Err(err).Msg("Failed to release outbox cleanup lock")
		}
	}()

	n, err := s.outbox.DeletePublishedBefore(ctx, time.Now().Add(-s.retention))
	if err != nil {
		log.Error().Err(err).Msg("Failed to clean up outbox")
		return
	}
	if n > 0 {
		log.Info().Int64("entries", n).Msg("Purged published outbox entries")
	}
}

func (s *Sweeper) worker(interval time.Duration, task func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				task()
			}
		}
	}()
}

func (s *Sweeper) Shutdown(ctx context.Context) error {
	if !s.started.Load() {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
