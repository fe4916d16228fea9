package dummy

import (
	"slices"
	"time"

	"github.com/indigo-web/strand/internal/protocol/http1"
)

var _ http1.Reactor = new(Reactor)

// Reactor is a manually driven event loop with a fake clock.
type Reactor struct {
	now    time.Duration
	calls  []*DelayedCall
	posted []func()
}

func NewReactor() *Reactor {
	return new(Reactor)
}

func (r *Reactor) CallLater(d time.Duration, fn func()) http1.DelayedCall {
	call := &DelayedCall{reactor: r, at: r.now + d, fn: fn}
	r.calls = append(r.calls, call)
	return call
}

func (r *Reactor) Post(fn func()) {
	r.posted = append(r.posted, fn)
}

// Advance moves the clock forward, running every call which became due, in order.
func (r *Reactor) Advance(d time.Duration) {
	deadline := r.now + d

	for {
		call := r.next(deadline)
		if call == nil {
			break
		}

		r.now = call.at
		call.remove()
		call.fn()
	}

	r.now = deadline
}

// RunPosted runs posted functions, including those posted while running, until either
// there are none left or the limit is reached. Returns the number of functions run.
func (r *Reactor) RunPosted(limit int) (n int) {
	for ; n < limit && len(r.posted) > 0; n++ {
		fn := r.posted[0]
		r.posted = r.posted[1:]
		fn()
	}

	return n
}

// Pending returns the number of scheduled delayed calls.
func (r *Reactor) Pending() int {
	return len(r.calls)
}

func (r *Reactor) next(deadline time.Duration) (next *DelayedCall) {
	for _, call := range r.calls {
		if call.at <= deadline && (next == nil || call.at < next.at) {
			next = call
		}
	}

	return next
}

type DelayedCall struct {
	reactor *Reactor
	at      time.Duration
	fn      func()
}

func (d *DelayedCall) Reset(delay time.Duration) {
	d.at = d.reactor.now + delay
}

func (d *DelayedCall) Cancel() {
	d.remove()
}

func (d *DelayedCall) remove() {
	d.reactor.calls = slices.DeleteFunc(d.reactor.calls, func(call *DelayedCall) bool {
		return call == d
	})
}
