package types

import (
	"sync/atomic"
	"time"
)

// pollInterval is the granularity of the event wait. Callers should treat it
// as an implementation detail.
const pollInterval = 10 * time.Millisecond

// AwaitEvent arms a watch on "component/event", runs body, then blocks until
// the event has been observed or timeout has elapsed. The watch is always
// disarmed before AwaitEvent returns, including when body panics, in which
// case the panic propagates unchanged and takes priority over any timeout
// failure. If the event is not observed in time, an assertion failure naming
// the pattern and the timeout is recorded.
//
// The wait sleeps in small increments instead of blocking on the loop: event
// callbacks are dispatched on the emitter's goroutine, so an event fired
// while the body's goroutine is polling is still observed.
func (t *T) AwaitEvent(component, event string, timeout time.Duration, body func()) {
	pattern := component + "/" + event

	// Later firings are ignored; the block cares only that the event fired
	// at least once while armed.
	var observed atomic.Bool
	err := t.handle.SubscribeEvent(pattern, func(string, ...any) {
		observed.Store(true)
	})
	if err != nil {
		t.recordFailure("arming watch on "+pattern+": "+err.Error(), 2)
		return
	}

	defer func() {
		if err := t.handle.UnsubscribeEvent(pattern); err != nil {
			t.log.Error("Disarming event watch failed", "pattern", pattern, "err", err)
		}
	}()

	body()

	deadline := time.Now().Add(timeout)
	for !observed.Load() && time.Now().Before(deadline) {
		time.Sleep(pollInterval)
	}

	if !observed.Load() {
		t.recordFailure("event "+pattern+" was not observed within "+timeout.String(), 2)
	}
}
