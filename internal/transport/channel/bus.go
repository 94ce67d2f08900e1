package channel

import (
	"context"
	"errors"
	"time"

	"github.com/tesnim01/remindd/internal/domain"
)

// ErrBufferFull is returned by Emit when the buffer stays full for the
// whole emit timeout. Callers treat it as a dropped analytics event.
var ErrBufferFull = errors.New("event bus buffer full")

// DefaultEmitTimeout bounds how long Emit blocks on a full buffer.
const DefaultEmitTimeout = 100 * time.Millisecond

// MetricsSink is the subset of metrics the bus reports.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	EmitError()
}

// EventBus carries delivery events from the lifecycle engine to the
// analytics recorder over a buffered channel. Emit is best-effort by
// design: a full buffer drops the event rather than stalling delivery.
type EventBus struct {
	ch          chan domain.DeliveryEvent
	emitTimeout time.Duration
	metrics     MetricsSink
}

type Option func(*EventBus)

// WithEmitTimeout overrides how long Emit waits on a full buffer.
func WithEmitTimeout(d time.Duration) Option {
	return func(b *EventBus) {
		b.emitTimeout = d
	}
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m MetricsSink) Option {
	return func(b *EventBus) {
		b.metrics = m
	}
}

func NewEventBus(buffer int, opts ...Option) *EventBus {
	b := &EventBus{
		ch:          make(chan domain.DeliveryEvent, buffer),
		emitTimeout: DefaultEmitTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Emit enqueues an event. It returns ErrBufferFull if the buffer stays
// full past the emit timeout, or the context error if ctx ends first.
func (b *EventBus) Emit(ctx context.Context, event domain.DeliveryEvent) error {
	select {
	case b.ch <- event:
		b.updateSize()
		return nil
	default:
	}

	timer := time.NewTimer(b.emitTimeout)
	defer timer.Stop()

	select {
	case b.ch <- event:
		b.updateSize()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ErrBufferFull
	}
}

// Channel exposes the consumer side of the bus.
func (b *EventBus) Channel() <-chan domain.DeliveryEvent {
	return b.ch
}

func (b *EventBus) updateSize() {
	if b.metrics != nil {
		b.metrics.BufferSizeUpdate(len(b.ch))
	}
}
