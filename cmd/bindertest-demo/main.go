package main

import (
	"time"

	bindertest "github.com/redpesk-common/bindertest"
	"github.com/redpesk-common/bindertest/binder"
	"github.com/redpesk-common/bindertest/registry"
	"github.com/redpesk-common/bindertest/types"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	bindertest.Main("bindertest-demo", Version, registerSuite)
}

// registerSuite defines the demonstration suite. It runs against the
// in-process loop runtime, so event emission is driven from the cases
// themselves.
func registerSuite(reg *registry.Registry) error {
	cases := []types.Case{
		{
			Name:        "ping",
			Description: "runtime answers before any component is exercised",
			Run: func(t *types.T) {
				if t.Binder() == nil {
					t.Fatalf("no runtime attached to the case")
				}
				t.Logf("runtime is up")
			},
		},
		{
			Name:        "subscribe-unsubscribe",
			Description: "event watch lifecycle",
			Run: func(t *types.T) {
				h := t.Binder()
				if err := h.SubscribeEvent("demo/heartbeat", func(string, ...any) {}); err != nil {
					t.Fatalf("subscribe: %v", err)
				}
				if err := h.UnsubscribeEvent("demo/heartbeat"); err != nil {
					t.Errorf("unsubscribe: %v", err)
				}
			},
		},
		{
			Name:        "await-event",
			Description: "event observed within its deadline",
			Run: func(t *types.T) {
				rt, ok := t.Binder().(*binder.LoopRuntime)
				if !ok {
					t.Skipf("event emission requires the loop runtime")
				}
				t.AwaitEvent("demo", "started", 500*time.Millisecond, func() {
					go func() {
						time.Sleep(20 * time.Millisecond)
						rt.Emit("demo", "started")
					}()
				})
			},
		},
		{
			Name:        "known-regression",
			Description: "documented failure kept visible without failing the suite",
			Run: func(t *types.T) {
				t.ExpectFailure()
				t.Errorf("tracked regression: wildcard watches miss events emitted before the loop starts")
			},
		},
	}

	for _, c := range cases {
		if err := reg.AddCase(c); err != nil {
			return err
		}
	}
	return nil
}
