package orchestration

import (
	"sync"
	"time"

	"github.com/koscakluka/ema-voice/core/events"
)

type eventQueueItem struct {
	event    events.Event
	queuedAt time.Time
}

// eventQueue is an unbounded FIFO. Producers are adapter callbacks that must
// never block, so push always succeeds until the queue is closed.
type eventQueue struct {
	mu           sync.Mutex
	items        []eventQueueItem
	closed       bool
	updateSignal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{updateSignal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(event events.Event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, eventQueueItem{event: event, queuedAt: time.Now()})
	q.mu.Unlock()
	q.signalUpdate()
	return true
}

// next blocks until an item is available or stop is closed.
func (q *eventQueue) next(stop <-chan struct{}) (eventQueueItem, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return eventQueueItem{}, false
		}
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = eventQueueItem{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-q.updateSignal:
		case <-stop:
			return eventQueueItem{}, false
		}
	}
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.items = nil
	q.mu.Unlock()
	q.signalUpdate()
}

func (q *eventQueue) signalUpdate() {
	select {
	case q.updateSignal <- struct{}{}:
	default:
	}
}
