// Package sweeper recovers reminders the proactive path missed.
//
// A reminder is stuck when it is still pending or scheduled past its due
// time: the schedule-ahead call failed, the delivery engine never fired,
// or the trigger callback was lost. The sweeper periodically scans for
// such reminders and forces each through the lifecycle engine's
// immediate-send path, then marks it overdue. The overdue transition is
// unconditional: the sweep's job is to guarantee the reminder leaves the
// non-terminal backlog even when delivery could not be confirmed;
// delivery failures stay visible in logs, metrics and the delivery
// attempt audit trail.
package sweeper

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tesnim01/remindd/internal/domain"
)

// Store lists reminders eligible for sweeping.
type Store interface {
	// ListDueReminders returns reminders in one of the given non-terminal
	// statuses with remind_at <= asOf, ordered by remind_at ascending.
	// Earliest-due first bounds worst-case staleness deterministically.
	ListDueReminders(ctx context.Context, statuses []domain.ReminderStatus, asOf time.Time, limit int) ([]domain.Reminder, error)
}

// Lifecycle is the subset of the lifecycle engine the sweeper drives.
type Lifecycle interface {
	SendImmediate(ctx context.Context, r domain.Reminder) error
	MarkOverdue(ctx context.Context, id uuid.UUID) error
}

// Schedule yields sweep tick times when a cron expression is configured
// instead of a fixed interval.
type Schedule interface {
	Next(after time.Time) time.Time
}

// MetricsSink records sweeper metrics. All methods must be non-blocking
// and fire-and-forget.
type MetricsSink interface {
	SweepStarted()
	SweepCompleted(duration time.Duration, swept int, err error)
	DueBacklogUpdate(count int)
}

type Config struct {
	// Interval between sweep cycles. Ignored when Schedule is set.
	Interval time.Duration

	// Schedule, when non-nil, drives cycles from a cron expression
	// instead of a fixed interval.
	Schedule Schedule

	// BatchSize is the maximum number of due reminders per cycle.
	// Default: 100.
	BatchSize int
}

// DefaultConfig returns the default sweeper configuration.
func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Minute,
		BatchSize: 100,
	}
}

type Sweeper struct {
	config    Config
	store     Store
	lifecycle Lifecycle
	metrics   MetricsSink // optional, nil = disabled
	clock     func() time.Time
}

func New(config Config, store Store, lifecycle Lifecycle) *Sweeper {
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	return &Sweeper{
		config:    config,
		store:     store,
		lifecycle: lifecycle,
		clock:     time.Now,
	}
}

// WithMetrics attaches a metrics sink.
func (s *Sweeper) WithMetrics(sink MetricsSink) *Sweeper {
	s.metrics = sink
	return s
}

// Run starts the sweep loop. It blocks until ctx is cancelled. The first
// cycle runs immediately so a restart recovers backlog without waiting a
// full interval.
func (s *Sweeper) Run(ctx context.Context) {
	if s.config.Schedule != nil {
		log.Println("sweeper: started (cron schedule)")
	} else {
		log.Printf("sweeper: started (interval=%s, batch=%d)", s.config.Interval, s.config.BatchSize)
	}

	s.RunOnce(ctx)

	for {
		if !s.waitNext(ctx) {
			log.Println("sweeper: stopped")
			return
		}
		s.RunOnce(ctx)
	}
}

// waitNext blocks until the next cycle is due. Returns false on shutdown.
func (s *Sweeper) waitNext(ctx context.Context) bool {
	var wait time.Duration
	if s.config.Schedule != nil {
		now := s.clock().UTC()
		wait = s.config.Schedule.Next(now).Sub(now)
		if wait < 0 {
			wait = 0
		}
	} else {
		wait = s.config.Interval
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// RunOnce executes a single sweep cycle. Exposed for the one-shot
// operator command.
func (s *Sweeper) RunOnce(ctx context.Context) {
	start := s.clock().UTC()
	if s.metrics != nil {
		s.metrics.SweepStarted()
	}

	due, err := s.store.ListDueReminders(ctx,
		[]domain.ReminderStatus{domain.ReminderStatusPending, domain.ReminderStatusScheduled},
		start, s.config.BatchSize)
	if err != nil {
		// Store error: abort the cycle, retry next tick.
		log.Printf("sweeper: failed to list due reminders: %v", err)
		if s.metrics != nil {
			s.metrics.SweepCompleted(s.clock().UTC().Sub(start), 0, err)
		}
		return
	}

	if s.metrics != nil {
		s.metrics.DueBacklogUpdate(len(due))
	}
	if len(due) == 0 {
		if s.metrics != nil {
			s.metrics.SweepCompleted(s.clock().UTC().Sub(start), 0, nil)
		}
		return
	}

	log.Printf("sweeper: found %d due reminders", len(due))

	swept := 0
	for _, r := range due {
		// Check context between reminders to allow graceful shutdown.
		if ctx.Err() != nil {
			log.Printf("sweeper: cycle interrupted, processed %d/%d reminders", swept, len(due))
			return
		}
		s.sweepOne(ctx, r)
		swept++
	}

	log.Printf("sweeper: cycle complete, swept=%d", swept)
	if s.metrics != nil {
		s.metrics.SweepCompleted(s.clock().UTC().Sub(start), swept, nil)
	}
}

// sweepOne forces a single reminder through the immediate-send path.
// Failures are isolated: one reminder's delivery or store error never
// aborts the rest of the cycle.
func (s *Sweeper) sweepOne(ctx context.Context, r domain.Reminder) {
	log.Printf("sweeper: sending overdue reminder=%s due=%s status=%s",
		r.ID, r.RemindAt.Format(time.RFC3339), r.Status)

	if err := s.lifecycle.SendImmediate(ctx, r); err != nil {
		// Delivery failure does not block the overdue transition.
		log.Printf("sweeper: reminder=%s immediate send failed: %v", r.ID, err)
	}

	if err := s.lifecycle.MarkOverdue(ctx, r.ID); err != nil {
		// Lost a race against a trigger callback or concurrent sweep; the
		// winner already placed the reminder in a terminal state.
		log.Printf("sweeper: reminder=%s mark overdue failed: %v", r.ID, err)
		return
	}

	log.Printf("sweeper: reminder=%s marked overdue", r.ID)
}
