// Package tracking delivers response counters and analytics events off the
// request path. Delivery is best effort: a full queue drops events and sink
// failures are logged, never returned to the caller.
package tracking

import (
	"context"
	"sync"
	"time"

	"instaflow/internal/metrics"

	"github.com/rs/zerolog/log"
)

const (
	ChannelDM      = "DM"
	ChannelComment = "COMMENT"
)

type Event struct {
	UserID       uint
	AutomationID uint
	Channel      string
	EventType    string
	Success      bool
	Metadata     map[string]interface{}
	At           time.Time
}

// Sink persists tracking events.
type Sink interface {
	IncrementResponse(ctx context.Context, automationID uint, channel string) error
	InsertAnalytics(ctx context.Context, ev Event) error
}

// Notifier fans events out to live dashboard clients.
type Notifier interface {
	BroadcastEvent(eventType string, data interface{})
}

type Queue struct {
	sink     Sink
	notifier Notifier
	events   chan Event
	timeout  time.Duration

	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

func NewQueue(sink Sink, size int, notifier Notifier) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		sink:     sink,
		notifier: notifier,
		events:   make(chan Event, size),
		timeout:  5 * time.Second,
	}
}

// Start launches the delivery workers.
func (q *Queue) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
}

// Record enqueues ev without blocking.
func (q *Queue) Record(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}

	select {
	case q.events <- ev:
	default:
		metrics.TrackingDroppedTotal.Inc()
		log.Warn().
			Uint("automation_id", ev.AutomationID).
			Str("event_type", ev.EventType).
			Msg("Tracking queue full, dropping event")
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.events)
		q.mu.Unlock()
	})
	q.wg.Wait()
}

func (q *Queue) work() {
	defer q.wg.Done()
	for ev := range q.events {
		q.deliver(ev)
	}
}

func (q *Queue) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	if ev.Success && ev.Channel != "" {
		if err := q.sink.IncrementResponse(ctx, ev.AutomationID, ev.Channel); err != nil {
			metrics.TrackingFailedTotal.Inc()
			log.Error().Err(err).Uint("automation_id", ev.AutomationID).Msg("Failed to increment response tracking")
		}
	}
	if err := q.sink.InsertAnalytics(ctx, ev); err != nil {
		metrics.TrackingFailedTotal.Inc()
		log.Error().Err(err).Uint("automation_id", ev.AutomationID).Msg("Failed to record analytics event")
	}
	if q.notifier != nil {
		q.notifier.BroadcastEvent("tracking", ev)
	}
}
