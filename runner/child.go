package runner

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"

	"github.com/redpesk-common/bindertest/binder"
	"github.com/redpesk-common/bindertest/exitcodes"
	"github.com/redpesk-common/bindertest/registry"
	"github.com/redpesk-common/bindertest/types"
)

// ChildCaseEnv marks a process as an isolated child and names the single
// case it must run.
const ChildCaseEnv = "BINDERTEST_ISOLATED_CASE"

// outcomeFd is the file descriptor the parent passes to the child for the
// one-shot outcome channel (the first entry of ExtraFiles).
const outcomeFd = 3

// loopStopSignal is the non-zero value the ready callback returns to stop
// the runtime's event loop after the case body has completed.
const loopStopSignal = 1

// RunChildIfRequested checks whether this process was spawned as an isolated
// child and, if so, runs the designated case and exits. The harness entry
// point calls it before any command-line parsing, so registration code runs
// identically in parent and child.
func RunChildIfRequested(reg *registry.Registry, opts types.ExecOptions) {
	name := os.Getenv(ChildCaseEnv)
	if name == "" {
		return
	}

	out := os.NewFile(outcomeFd, "outcome")
	if out == nil {
		// Nothing to report on: the parent will observe the truncation.
		os.Exit(exitcodes.RuntimeErr)
	}
	os.Exit(RunChild(reg, name, opts, out))
}

// RunChild executes exactly one case inside this (already isolated) context
// and writes the encoded OutcomeRecord to out. The return value is the
// loop's reported exit status.
func RunChild(reg *registry.Registry, name string, opts types.ExecOptions, out io.WriteCloser) int {
	logger := opts.Log
	if logger == nil {
		logger = log.New()
		opts.Log = logger
	}

	c, ok := reg.CaseByName(name)
	if !ok {
		writeOutcome(out, SyntheticOutcome(fmt.Sprintf("isolated context spawned for unknown case %q", name)), logger)
		return exitcodes.RuntimeErr
	}
	return executeIsolated(c, reg, opts, out, logger)
}

// executeIsolated is the body of one isolated context: build a fresh runtime
// from the frozen registry, load every component under test, run the event
// loop with a ready callback that executes the case, then encode and
// transmit the outcome once the loop has stopped.
func executeIsolated(c types.Case, reg *registry.Registry, opts types.ExecOptions, out io.WriteCloser, logger log.Logger) int {
	handle, err := reg.Factory()(reg.BinderConfig())
	if err != nil {
		writeOutcome(out, SyntheticOutcome(fmt.Sprintf("creating runtime: %v", err)), logger)
		return exitcodes.RuntimeErr
	}
	defer func() {
		if err := handle.Close(); err != nil {
			logger.Debug("Closing runtime", "err", err)
		}
	}()

	for _, comp := range reg.Components() {
		if err := handle.LoadComponent(comp); err != nil {
			writeOutcome(out, SyntheticOutcome(fmt.Sprintf("loading component %q: %v", comp.Identity, err)), logger)
			return exitcodes.RuntimeErr
		}
	}

	var rec *types.OutcomeRecord
	code, err := handle.RunLoopUntilSignalled(context.Background(), func(h binder.Handle) int {
		rec = types.ExecuteCase(c, h, opts)
		return loopStopSignal
	})
	if err != nil {
		writeOutcome(out, SyntheticOutcome(fmt.Sprintf("running event loop: %v", err)), logger)
		return exitcodes.RuntimeErr
	}
	if rec == nil {
		// The loop stopped without dispatching the ready callback.
		writeOutcome(out, SyntheticOutcome("event loop stopped before the case body ran"), logger)
		return exitcodes.RuntimeErr
	}

	writeOutcome(out, rec, logger)
	logger.Debug("Isolated case complete", "case", c.Name, "status", rec.Status(), "loopCode", code)
	return code
}

func writeOutcome(out io.WriteCloser, rec *types.OutcomeRecord, logger log.Logger) {
	defer func() {
		if err := out.Close(); err != nil {
			logger.Error("Closing outcome channel", "err", err)
		}
	}()

	data, err := EncodeOutcome(rec)
	if err != nil {
		// Closing without bytes surfaces as a transport truncation on the
		// parent side, which is the correct degraded report here.
		logger.Error("Encoding outcome failed", "err", err)
		return
	}
	if _, err := out.Write(data); err != nil {
		logger.Error("Transmitting outcome failed", "err", err)
	}
}
