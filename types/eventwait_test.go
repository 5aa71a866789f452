package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitEventObservedBeforeTimeout(t *testing.T) {
	rt := newCaseRuntime(t)

	rec := ExecuteCase(Case{Name: "event fires", Run: func(tc *T) {
		tc.AwaitEvent("demo", "started", 50*time.Millisecond, func() {
			go func() {
				time.Sleep(10 * time.Millisecond)
				rt.Emit("demo", "started")
			}()
		})
	}}, rt, ExecOptions{})

	assert.Empty(t, rec.Failures)
	assert.Empty(t, rec.Errors)
	assert.Equal(t, TestStatusPass, rec.Status())

	// The watch must be disarmed on exit: a fresh subscription to the same
	// pattern succeeds.
	require.NoError(t, rt.SubscribeEvent("demo/started", func(string, ...any) {}))
}

func TestAwaitEventTimeout(t *testing.T) {
	rt := newCaseRuntime(t)

	rec := ExecuteCase(Case{Name: "event never fires", Run: func(tc *T) {
		tc.AwaitEvent("demo", "started", 50*time.Millisecond, func() {})
	}}, rt, ExecOptions{})

	require.Len(t, rec.Failures, 1)
	assert.Contains(t, rec.Failures[0], "demo/started", "failure must name the pattern")
	assert.Contains(t, rec.Failures[0], "50", "failure must name the timeout")

	require.NoError(t, rt.SubscribeEvent("demo/started", func(string, ...any) {}),
		"watch must be disarmed after a timeout")
}

func TestAwaitEventLateFiringStillFails(t *testing.T) {
	rt := newCaseRuntime(t)

	rec := ExecuteCase(Case{Name: "event fires late", Run: func(tc *T) {
		tc.AwaitEvent("demo", "late", 30*time.Millisecond, func() {
			go func() {
				time.Sleep(300 * time.Millisecond)
				rt.Emit("demo", "late")
			}()
		})
	}}, rt, ExecOptions{})

	require.Len(t, rec.Failures, 1)
	assert.Contains(t, rec.Failures[0], "demo/late")

	time.Sleep(350 * time.Millisecond)
	require.NoError(t, rt.SubscribeEvent("demo/late", func(string, ...any) {}),
		"watch must be disarmed even when the event fires after the deadline")
}

func TestAwaitEventBodyPanicTakesPriority(t *testing.T) {
	rt := newCaseRuntime(t)

	rec := ExecuteCase(Case{Name: "body panics", Run: func(tc *T) {
		tc.AwaitEvent("demo", "never", 50*time.Millisecond, func() {
			panic("body exploded")
		})
	}}, rt, ExecOptions{})

	assert.Empty(t, rec.Failures, "the panic outranks the timeout failure")
	require.Len(t, rec.Errors, 1)
	assert.Contains(t, rec.Errors[0], "body exploded")

	require.NoError(t, rt.SubscribeEvent("demo/never", func(string, ...any) {}),
		"watch must be disarmed when the body panics")
}

func TestAwaitEventBodyFatalStillDisarms(t *testing.T) {
	rt := newCaseRuntime(t)

	rec := ExecuteCase(Case{Name: "body fatals", Run: func(tc *T) {
		tc.AwaitEvent("demo", "never", 50*time.Millisecond, func() {
			tc.Fatalf("giving up early")
		})
	}}, rt, ExecOptions{})

	require.Len(t, rec.Failures, 1)
	assert.Contains(t, rec.Failures[0], "giving up early")

	require.NoError(t, rt.SubscribeEvent("demo/never", func(string, ...any) {}))
}

func TestAwaitEventSubscribeFailureIsAssertionFailure(t *testing.T) {
	rt := newCaseRuntime(t)
	require.NoError(t, rt.SubscribeEvent("demo/taken", func(string, ...any) {}))

	rec := ExecuteCase(Case{Name: "pattern already armed", Run: func(tc *T) {
		tc.AwaitEvent("demo", "taken", 50*time.Millisecond, func() {
			t.Error("body must not run when arming fails")
		})
	}}, rt, ExecOptions{})

	require.Len(t, rec.Failures, 1)
	assert.Contains(t, rec.Failures[0], "demo/taken")
}

func TestAwaitEventIgnoresRepeatFirings(t *testing.T) {
	rt := newCaseRuntime(t)

	rec := ExecuteCase(Case{Name: "event storm", Run: func(tc *T) {
		tc.AwaitEvent("demo", "burst", 100*time.Millisecond, func() {
			go func() {
				for i := 0; i < 5; i++ {
					rt.Emit("demo", "burst")
					time.Sleep(time.Millisecond)
				}
			}()
		})
	}}, rt, ExecOptions{})

	assert.Equal(t, TestStatusPass, rec.Status())
}
