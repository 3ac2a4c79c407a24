// Package scheduler runs the background decay loop: each tick applies one
// decay cycle to every managed field and optionally forwards fresh
// operation log entries to the event bus.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/semfield/internal/field"
)

// Publisher forwards operation log entries past a sequence number and
// returns the highest sequence forwarded.
type Publisher interface {
	PublishNew(ctx context.Context, f *field.Field, afterSeq int64) (int64, error)
}

// Scheduler drives periodic decay over all fields of a manager.
type Scheduler struct {
	manager  *field.Manager
	interval time.Duration
	bus      Publisher
	logger   *zap.Logger

	mu       sync.Mutex
	lastSeen map[string]int64
	stop     chan struct{}
	done     chan struct{}
}

// New creates a decay scheduler. The bus may be nil to run without
// event publishing.
func New(manager *field.Manager, interval time.Duration, bus Publisher, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		manager:  manager,
		interval: interval,
		bus:      bus,
		logger:   logger,
		lastSeen: make(map[string]int64),
	}
}

// Start launches the tick loop. Call Stop to shut it down.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Tick(context.Background())
			}
		}
	}()
	s.logger.Info("decay scheduler started", zap.Duration("interval", s.interval))
}

// Stop halts the tick loop and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	s.logger.Info("decay scheduler stopped")
}

// Tick applies one decay cycle to every field and publishes new events.
// Exposed so callers can force a cycle outside the timer.
func (s *Scheduler) Tick(ctx context.Context) {
	for _, id := range s.manager.IDs() {
		f, err := s.manager.Get(id)
		if err != nil {
			continue
		}
		pruned := f.Decay()
		if pruned > 0 {
			s.logger.Debug("decay pruned patterns",
				zap.String("field", id),
				zap.Int("pruned", pruned))
		}
		s.publish(ctx, f)
	}
}

func (s *Scheduler) publish(ctx context.Context, f *field.Field) {
	if s.bus == nil {
		return
	}
	s.mu.Lock()
	after := s.lastSeen[f.ID]
	s.mu.Unlock()

	last, err := s.bus.PublishNew(ctx, f, after)
	if err != nil {
		s.logger.Warn("event publish failed",
			zap.String("field", f.ID),
			zap.Error(err))
	}
	s.mu.Lock()
	s.lastSeen[f.ID] = last
	s.mu.Unlock()
}
