package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) SweepStarted()                                               {}
func (n *NoopSink) SweepCompleted(duration time.Duration, swept int, err error) {}
func (n *NoopSink) DueBacklogUpdate(count int)                                  {}
func (n *NoopSink) SendAttemptCompleted(kind, statusClass string, d time.Duration) {
}
func (n *NoopSink) ScheduleOutcome(outcome string) {}
func (n *NoopSink) DeliveryOutcome(outcome string) {}
func (n *NoopSink) TriggerReceived(replayed bool)  {}
func (n *NoopSink) BufferSizeUpdate(size int)      {}
func (n *NoopSink) EmitError()                     {}
