package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	dom "github.com/bookingcontrol/booker-slot-svc/internal/domain/slot"
)

// Task is one periodic maintenance job. Every run is guarded by the
// distributed lock keyed by Name, so only one replica executes it and
// MaxHold caps how long a hung run can keep others out.
type Task struct {
	Name     string
	Interval time.Duration
	MaxHold  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler drives the rolling-window and recovery tasks.
type Scheduler struct {
	lock  dom.TaskLock
	tasks []Task

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started atomic.Bool
}

func New(lock dom.TaskLock, tasks ...Task) *Scheduler {
	return &Scheduler{lock: lock, tasks: tasks}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, task := range s.tasks {
		task := task
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()

			ticker := time.NewTicker(task.Interval)
			defer ticker.Stop()

			for {
				select {
				case <-s.ctx.Done():
					return
				case <-ticker.C:
					s.runTask(task)
				}
			}
		}()
	}

	return nil
}

func (s *Scheduler) runTask(task Task) {
	acquired, err := s.lock.TryAcquire(s.ctx, task.Name, task.MaxHold)
	if err != nil {
		log.Error().Err(err).Str("task", task.Name).Msg("Failed to acquire task lock")
		return
	}
	if !acquired {
		log.Debug().Str("task", task.Name).Msg("Task lock held elsewhere, skipping run")
		return
	}
	defer func() {
		if err := s.lock.Release(s.ctx, task.Name); err != nil {
			log.Error().Err(err).Str("task", task.Name).Msg("Failed to release task lock")
		}
	}()

	runCtx, cancel := context.WithTimeout(s.ctx, task.MaxHold)
	defer cancel()

	start := time.Now()
	if err := task.Run(runCtx); err != nil {
		log.Error().Err(err).Str("task", task.Name).Msg("Scheduled task failed")
		return
	}
	log.Info().
		Str("task", task.Name).
		Dur("took", time.Since(start)).
		Msg("Scheduled task finished")
}

func (s *Scheduler) Shutdown(ctx context.Context) error {
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
