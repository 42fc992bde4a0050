package outbox

import (
	"context"
	"log/slog"
	"time"
)

// PendingLister is the slice of the outbox store the sweeper needs.
type PendingLister interface {
	ListPending(ctx context.Context, minAge time.Duration, limit int) ([]Item, error)
}

// Sweeper periodically re-drives staged items whose synchronous
// processing never ran, typically because the worker crashed between
// commit and dispatch. Together with the processor's claim it gives
// the outbox at-least-once forward progress.
type Sweeper struct {
	store     PendingLister
	processor *Processor
	interval  time.Duration
	minAge    time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewSweeper(store PendingLister, processor *Processor, interval, minAge time.Duration, batchSize int, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:     store,
		processor: processor,
		interval:  interval,
		minAge:    minAge,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run sweeps until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	items, err := s.store.ListPending(ctx, s.minAge, s.batchSize)
	if err != nil {
		s.logger.Error("failed to list pending outbox items", "error", err)
		return
	}

	if len(items) == 0 {
		return
	}

	s.logger.Info("sweeping stale outbox items", "count", len(items))
	for _, item := range items {
		s.processor.Process(ctx, item)
	}
}
