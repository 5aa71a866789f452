package binder

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
)

// Loop states. The loop is an explicit two-state machine once started: the
// one-shot ready task transitions it from running to stopped by returning a
// non-zero code.
const (
	stateIdle int32 = iota
	stateRunning
	stateStopped
)

// LoopRuntime is an in-process reference implementation of Handle. It runs a
// single-goroutine cooperative event loop and supports full
// multi-instantiation: every NewLoopRuntime call is an independent runtime,
// which is what lets the in-process isolator give each test a fresh instance.
//
// Event dispatch deliberately happens on the emitter's goroutine rather than
// through the loop's task queue. A test body that blocks the loop goroutine
// while polling for an event would otherwise starve the very dispatch it is
// waiting for.
type LoopRuntime struct {
	cfg      Config
	log      log.Logger
	state    atomic.Int32
	tasks    chan func()
	stop     chan int
	listener net.Listener

	mu         sync.Mutex
	components map[string]ComponentConfig
	subs       map[string]EventCallback
}

var _ Handle = (*LoopRuntime)(nil)

// LoopFactory adapts NewLoopRuntime to the Factory signature.
var LoopFactory Factory = func(cfg Config) (Handle, error) {
	return NewLoopRuntime(cfg)
}

// NewLoopRuntime creates a fresh loopback runtime. A listener is opened only
// when cfg.ListenPort is non-zero; tests run with port 0.
func NewLoopRuntime(cfg Config) (*LoopRuntime, error) {
	if cfg.Identity == "" {
		return nil, fmt.Errorf("runtime identity is required")
	}

	rt := &LoopRuntime{
		cfg:        cfg,
		log:        log.New("component", "binder", "uid", cfg.Identity),
		tasks:      make(chan func(), 16),
		stop:       make(chan int, 1),
		components: make(map[string]ComponentConfig),
		subs:       make(map[string]EventCallback),
	}

	if cfg.ListenPort != 0 {
		l, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.ListenPort))
		if err != nil {
			return nil, fmt.Errorf("opening listener on port %d: %w", cfg.ListenPort, err)
		}
		rt.listener = l
		rt.log.Debug("Listener opened", "addr", l.Addr())
	}

	return rt, nil
}

// LoadComponent implements Handle. Components must be loaded before the loop
// starts.
func (rt *LoopRuntime) LoadComponent(cfg ComponentConfig) error {
	if rt.state.Load() != stateIdle {
		return fmt.Errorf("cannot load component %q: loop already started", cfg.Identity)
	}
	if cfg.Identity == "" {
		return fmt.Errorf("component identity is required")
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, ok := rt.components[cfg.Identity]; ok {
		return fmt.Errorf("component %q already loaded", cfg.Identity)
	}
	rt.components[cfg.Identity] = cfg
	rt.log.Debug("Component loaded", "uid", cfg.Identity, "path", cfg.Path)
	return nil
}

// Components returns the identities of the loaded components.
func (rt *LoopRuntime) Components() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	ids := make([]string, 0, len(rt.components))
	for id := range rt.components {
		ids = append(ids, id)
	}
	return ids
}

// RunLoopUntilSignalled implements Handle. The loop runs on the calling
// goroutine; a runtime instance is single-use and cannot be restarted.
func (rt *LoopRuntime) RunLoopUntilSignalled(ctx context.Context, onReady ReadyFunc) (int, error) {
	if !rt.state.CompareAndSwap(stateIdle, stateRunning) {
		return 0, fmt.Errorf("loop already started for runtime %q", rt.cfg.Identity)
	}
	defer rt.state.Store(stateStopped)

	// The ready callback is posted as a one-shot task so it runs on the
	// loop goroutine, after the loop is demonstrably dispatching.
	rt.tasks <- func() {
		if code := onReady(rt); code != 0 {
			rt.Signal(code)
		}
	}

	for {
		select {
		case task := <-rt.tasks:
			task()
		case code := <-rt.stop:
			rt.log.Debug("Loop stopped", "code", code)
			return code, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Signal requests the loop to stop with the given exit code. The first
// signal wins.
func (rt *LoopRuntime) Signal(code int) {
	select {
	case rt.stop <- code:
	default:
	}
}

// SubscribeEvent implements Handle. A pattern can be armed only once at a
// time; re-subscribing after an unsubscribe is allowed.
func (rt *LoopRuntime) SubscribeEvent(pattern string, cb EventCallback) error {
	if pattern == "" {
		return fmt.Errorf("event pattern is required")
	}
	if cb == nil {
		return fmt.Errorf("event callback is required")
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, ok := rt.subs[pattern]; ok {
		return fmt.Errorf("pattern %q already subscribed", pattern)
	}
	rt.subs[pattern] = cb
	return nil
}

// UnsubscribeEvent implements Handle.
func (rt *LoopRuntime) UnsubscribeEvent(pattern string) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if _, ok := rt.subs[pattern]; !ok {
		return fmt.Errorf("pattern %q is not subscribed", pattern)
	}
	delete(rt.subs, pattern)
	return nil
}

// Emit publishes an event named "component/event" to every matching
// subscription. It returns the number of callbacks invoked. Components (and
// tests standing in for them) may call Emit from any goroutine.
func (rt *LoopRuntime) Emit(component, event string, args ...any) int {
	name := component + "/" + event

	rt.mu.Lock()
	matched := make([]EventCallback, 0, 1)
	for pattern, cb := range rt.subs {
		if patternMatches(pattern, name) {
			matched = append(matched, cb)
		}
	}
	rt.mu.Unlock()

	for _, cb := range matched {
		cb(name, args...)
	}
	return len(matched)
}

// Close implements Handle.
func (rt *LoopRuntime) Close() error {
	rt.Signal(0)
	if rt.listener != nil {
		return rt.listener.Close()
	}
	return nil
}

// patternMatches reports whether a subscription pattern covers an event
// name. Patterns are exact, except that a trailing '*' matches any suffix
// ("api/*" covers every event of "api").
func patternMatches(pattern, name string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(name, prefix)
	}
	return pattern == name
}
