// Package sched dispatches metric computations off the caller's thread
// and drives the periodic refresh loop.
package sched

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/theirongolddev/ccmeter/internal/model"
)

// DefaultInterval is the stock refresh cadence.
const DefaultInterval = 8 * time.Second

// ComputeFunc is the pure computation the scheduler runs. Concurrency
// control inside the computation is the callee's concern; the scheduler
// only guarantees it never starts a periodic run while one is in flight.
type ComputeFunc func(ctx context.Context) (*model.Metrics, error)

// SnapshotFunc receives each fresh snapshot (or the error that replaced it).
type SnapshotFunc func(*model.Metrics, error)

// Scheduler runs a ComputeFunc on worker goroutines: once on demand, or
// periodically with re-entrancy suppression (a tick that lands while a
// run is still in flight is dropped, so slow loads never pile up).
type Scheduler struct {
	compute  ComputeFunc
	interval time.Duration
	logger   zerolog.Logger

	inFlight atomic.Bool
}

// New returns a scheduler. A non-positive interval falls back to
// DefaultInterval.
func New(compute ComputeFunc, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{compute: compute, interval: interval, logger: logger}
}

// RunOnce submits one computation to a worker goroutine and awaits its
// snapshot. Returns early with ctx's error on cancellation; the worker
// then finishes in the background and its result is discarded.
func (s *Scheduler) RunOnce(ctx context.Context) (*model.Metrics, error) {
	type outcome struct {
		m   *model.Metrics
		err error
	}

	ch := make(chan outcome, 1)
	go func() {
		m, err := s.compute(ctx)
		ch <- outcome{m, err}
	}()

	select {
	case o := <-ch:
		return o.m, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run seeds an immediate refresh, then ticks every interval until ctx is
// canceled, delivering each snapshot to onSnapshot from the worker
// goroutine.
func (s *Scheduler) Run(ctx context.Context, onSnapshot SnapshotFunc) error {
	s.dispatch(ctx, onSnapshot)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.dispatch(ctx, onSnapshot)
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, onSnapshot SnapshotFunc) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Debug().Msg("refresh tick dropped, computation still in flight")
		return
	}

	go func() {
		defer s.inFlight.Store(false)
		m, err := s.compute(ctx)
		if ctx.Err() != nil {
			return
		}
		onSnapshot(m, err)
	}()
}
