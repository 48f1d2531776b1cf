package orchestration

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-voice/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// conversationRuntime owns the event queue and the single goroutine that
// applies queued events one at a time.
type conversationRuntime struct {
	queue   *eventQueue
	closeCh chan struct{}
	done    chan struct{}

	startOnce sync.Once
	endOnce   sync.Once

	started atomic.Bool
}

func newConversationRuntime() *conversationRuntime {
	return &conversationRuntime{
		queue:   newEventQueue(),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (runtime *conversationRuntime) start(apply func(eventQueueItem)) (started bool) {
	if runtime.isClosed() {
		return false
	}

	runtime.startOnce.Do(func() {
		if runtime.isClosed() {
			return
		}

		started = true
		runtime.started.Store(true)
		go func() {
			defer close(runtime.done)

			for {
				item, ok := runtime.queue.next(runtime.closeCh)
				if !ok {
					return
				}
				apply(item)
			}
		}()
	})

	return started
}

func (runtime *conversationRuntime) end() {
	runtime.endOnce.Do(func() {
		close(runtime.closeCh)
		runtime.queue.close()
	})
}

func (runtime *conversationRuntime) waitUntilEnded() {
	if runtime.started.Load() {
		<-runtime.done
	}
}

func (runtime *conversationRuntime) enqueue(event events.Event) bool {
	if runtime.isClosed() {
		return false
	}
	return runtime.queue.push(event)
}

func (runtime *conversationRuntime) isClosed() bool {
	select {
	case <-runtime.closeCh:
		return true
	default:
		return false
	}
}

func (runtime *conversationRuntime) queuedEventCount() int {
	return runtime.queue.len()
}

// processQueuedEvent applies one event and records how long it waited on the
// span of the turn in flight, if any.
func (o *Orchestrator) processQueuedEvent(item eventQueueItem) {
	queuedTime := time.Since(item.queuedAt).Seconds()

	o.mu.RLock()
	span := o.turnSpan
	o.mu.RUnlock()
	if span != nil {
		span.AddEvent("taken out of queue", trace.WithAttributes(
			attribute.String("event.kind", string(item.event.Kind())),
			attribute.Float64("event.queued_time", queuedTime),
			attribute.Int("event.queued_events", o.runtime.queuedEventCount()),
		))
	}

	o.handle(item.event)
}
