package outbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	dom "github.com/bookingcontrol/booker-slot-svc/internal/domain/slot"
)

// Dispatcher is the immediate delivery path: the state machine drops
// freshly committed entry ids into its queue and a bounded worker pool
// tries one quick publish each. None of this runs inside the business
// transaction, so a slow bus can never block or roll back a request.
// Anything the dispatcher misses, the sweeper converges later.
type Dispatcher struct {
	outbox    dom.OutboxRepository
	publisher dom.EventPublisher

	queue          chan uuid.UUID
	workers        int
	publishTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started atomic.Bool
}

func NewDispatcher(outbox dom.OutboxRepository, publisher dom.EventPublisher, workers, queueSize int, publishTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		outbox:         outbox,
		publisher:      publisher,
		queue:          make(chan uuid.UUID, queueSize),
		workers:        workers,
		publishTimeout: publishTimeout,
	}
}

func (d *Dispatcher) Start(ctx context.Context) error {
	if !d.started.CompareAndSwap(false, true) {
		return fmt.Errorf("dispatcher already started")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case <-d.ctx.Done():
					return
				case id := <-d.queue:
					d.dispatch(id)
				}
			}
		}()
	}

	return nil
}

// Notify never blocks. A full queue just means this entry waits for
// the sweeper; durability already happened in the write path.
func (d *Dispatcher) Notify(entryID uuid.UUID) {
	select {
	case d.queue <- entryID:
	default:
		log.Debug().Str("entry_id", entryID.String()).Msg("Dispatch queue full, deferring to sweeper")
	}
}

func (d *Dispatcher) dispatch(entryID uuid.UUID) {
	ctx, cancel := context.WithTimeout(d.ctx, d.publishTimeout)

	entry, err := d.outbox.Get(ctx, entryID)
	if err != nil {
		cancel()
		log.Error().Err(err).Str("entry_id", entryID.String()).Msg("Failed to load outbox entry")
		return
	}
	if entry.Status != dom.OutboxPending {
		cancel()
		return
	}

	err = d.publisher.Publish(ctx, entry)
	cancel()
	if err != nil {
		// Not an error for the caller: the sweeper retries it.
		log.Warn().Err(err).Str("entry_id", entryID.String()).Msg("Immediate publish failed, deferring to sweeper")
		return
	}

	// The status update gets its own budget. A publish that ate the
	// whole timeout must not turn a delivered entry into a sweeper
	// double-publish just because the mark inherited a dead context.
	markCtx, markCancel := context.WithTimeout(d.ctx, d.publishTimeout)
	defer markCancel()
	if err := d.outbox.MarkPublished(markCtx, entryID); err != nil {
		log.Error().Err(err).Str("entry_id", entryID.String()).Msg("Failed to mark outbox entry published")
	}
}

func (d *Dispatcher) Shutdown(ctx context.Context) error {
	if !d.started.Load() {
		return nil
	}

	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
