// Package analytics aggregates delivery events into Redis counters for
// dashboards. The counters are advisory: losing them never affects
// reminder correctness.
package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tesnim01/remindd/internal/domain"
)

// Recorder consumes delivery events and increments day-bucketed Redis
// counters keyed by send kind and outcome.
type Recorder struct {
	client    *redis.Client
	retention time.Duration
}

func NewRecorder(client *redis.Client, retention time.Duration) *Recorder {
	return &Recorder{client: client, retention: retention}
}

// Run consumes events until ctx is cancelled, then drains whatever is
// already buffered before returning. Intended to run in its own
// goroutine with the bus's channel.
func (r *Recorder) Run(ctx context.Context, events <-chan domain.DeliveryEvent) {
	log.Printf("analytics: recorder started (retention=%s)", r.retention)
	for {
		select {
		case <-ctx.Done():
			r.drain(events)
			log.Printf("analytics: recorder stopped")
			return
		case event, ok := <-events:
			if !ok {
				log.Printf("analytics: event channel closed, recorder stopped")
				return
			}
			r.record(event)
		}
	}
}

// drain flushes buffered events with a short deadline so shutdown never
// hangs on a slow Redis.
func (r *Recorder) drain(events <-chan domain.DeliveryEvent) {
	deadline := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			r.record(event)
		case <-deadline:
			return
		default:
			return
		}
	}
}

func (r *Recorder) record(event domain.DeliveryEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	key := buildKey(event.Kind, event.Outcome, event.At)

	pipe := r.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, r.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("analytics: reminder=%s redis pipeline failed: %v", event.ReminderID, err)
	}
}

// buildKey buckets counters per UTC day, e.g.
// remindd:deliveries:immediate:delivered:20260831.
func buildKey(kind domain.SendKind, outcome string, t time.Time) string {
	return fmt.Sprintf("remindd:deliveries:%s:%s:%s", kind, outcome, t.UTC().Format("20060102"))
}
