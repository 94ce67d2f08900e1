package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Sweeper metrics
	SweepStarted()
	SweepCompleted(duration time.Duration, swept int, err error)
	DueBacklogUpdate(count int)

	// Lifecycle / notifier metrics
	SendAttemptCompleted(kind string, statusClass string, duration time.Duration)
	ScheduleOutcome(outcome string)
	DeliveryOutcome(outcome string)
	TriggerReceived(replayed bool)

	// EventBus metrics
	BufferSizeUpdate(size int)
	EmitError()
}
