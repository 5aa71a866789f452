// Package binder defines the boundary between the harness and the external
// event-driven runtime that hosts components under test. The harness never
// assumes anything about the runtime beyond the Handle interface; a real
// deployment plugs in a libafb-backed implementation, while tests and the
// demo suite use the in-process LoopRuntime.
package binder

import "context"

// Config carries the runtime creation parameters. Field names follow the
// binder's wire configuration.
type Config struct {
	Identity   string         `json:"uid"`
	Verbosity  int            `json:"verbose"`
	RootDir    string         `json:"rootdir"`
	Set        map[string]any `json:"set,omitempty"`
	ListenPort int            `json:"port"` // 0 disables the network listener
}

// ComponentConfig identifies one loadable component and where to find it.
type ComponentConfig struct {
	Identity string `json:"uid"`
	Path     string `json:"path"`
}

// EventCallback is invoked when a subscribed event fires. Callbacks may run
// on the goroutine that emitted the event, so they must be short and safe to
// call concurrently with the loop.
type EventCallback func(pattern string, args ...any)

// ReadyFunc runs on the loop goroutine once the loop is ready. A non-zero
// return value signals the loop to stop and becomes its exit code.
type ReadyFunc func(h Handle) int

// Handle is the opaque runtime handle offered by the binder.
type Handle interface {
	// LoadComponent registers a component with the runtime. It must be
	// called before the loop starts.
	LoadComponent(cfg ComponentConfig) error

	// RunLoopUntilSignalled runs the runtime's event loop on the calling
	// goroutine. onReady is dispatched exactly once after the loop becomes
	// ready; the loop stops as soon as onReady (or a later stop signal)
	// yields a non-zero code, which is returned as the loop's exit code.
	RunLoopUntilSignalled(ctx context.Context, onReady ReadyFunc) (int, error)

	// SubscribeEvent arms a watch on an event pattern ("component/event").
	SubscribeEvent(pattern string, cb EventCallback) error

	// UnsubscribeEvent removes a previously armed watch.
	UnsubscribeEvent(pattern string) error

	// Close releases any resources held by the runtime.
	Close() error
}

// Factory constructs a fresh runtime instance. The isolated runner calls it
// once per test, inside the isolated context.
type Factory func(cfg Config) (Handle, error)
