package orchestration

import (
	"context"
	"sync"
)

// adapterCalls runs capture and playback calls one at a time, in the order
// they were submitted, on a goroutine of their own. Transitions submit calls
// and return, so a slow device or dial never holds the event loop or the
// state lock. One queue serves both adapters: a playback stop submitted
// before a capture start always completes first.
type adapterCalls struct {
	mu      sync.Mutex
	idle    *sync.Cond
	calls   []namedCall
	running bool
}

type namedCall struct {
	ctx  context.Context
	name string
	run  func(context.Context) error
}

func newAdapterCalls() *adapterCalls {
	a := &adapterCalls{}
	a.idle = sync.NewCond(&a.mu)
	return a
}

// submit queues run. A returned error is only logged; calls report failures
// that matter to the state machine by enqueueing an event themselves.
func (a *adapterCalls) submit(ctx context.Context, name string, run func(context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.calls = append(a.calls, namedCall{ctx: ctx, name: name, run: run})
	if !a.running {
		a.running = true
		go a.process()
	}
}

func (a *adapterCalls) process() {
	for {
		a.mu.Lock()
		if len(a.calls) == 0 {
			a.running = false
			a.idle.Broadcast()
			a.mu.Unlock()
			return
		}
		call := a.calls[0]
		a.calls = a.calls[1:]
		a.mu.Unlock()

		if err := panicSafeNamedWorker(call.name, call.run)(call.ctx); err != nil {
			logger.Warn("adapter call failed", "call", call.name, "error", err)
		}
	}
}

// wait blocks until every submitted call has returned.
func (a *adapterCalls) wait() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for a.running {
		a.idle.Wait()
	}
}
