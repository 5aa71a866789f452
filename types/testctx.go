package types

import (
	"fmt"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/redpesk-common/bindertest/binder"
)

// failNowMarker and skipMarker are panic sentinels used to unwind a case
// body early. They never escape ExecuteCase.
type failNowMarker struct{}
type skipMarker struct{}

// T is the context handed to a case body. It records assertion failures and
// skips, exposes the isolated context's runtime handle, and carries the
// event-wait synchronizer. A single T serves a single case; it is created on
// the loop goroutine and must not be retained after the body returns.
type T struct {
	caseName string
	handle   binder.Handle
	log      log.Logger

	mu            sync.Mutex
	failures      []string
	errors        []string
	skipped       bool
	expectFailure bool
}

// Binder returns the runtime handle of the current isolated context.
func (t *T) Binder() binder.Handle {
	return t.handle
}

// Name returns the name of the case under execution.
func (t *T) Name() string {
	return t.caseName
}

// Logf writes a log line attributed to the case.
func (t *T) Logf(format string, args ...any) {
	t.log.Info(fmt.Sprintf(format, args...), "case", t.caseName)
}

// Errorf records an assertion failure and lets the body continue.
func (t *T) Errorf(format string, args ...any) {
	t.recordFailure(fmt.Sprintf(format, args...), 2)
}

// Fatalf records an assertion failure and stops the body immediately.
func (t *T) Fatalf(format string, args ...any) {
	t.recordFailure(fmt.Sprintf(format, args...), 2)
	panic(failNowMarker{})
}

// FailNow stops the body immediately. A failure must already have been
// recorded; otherwise the stop itself is recorded as the failure.
func (t *T) FailNow() {
	t.mu.Lock()
	n := len(t.failures)
	t.mu.Unlock()
	if n == 0 {
		t.recordFailure("FailNow called without a recorded failure", 2)
	}
	panic(failNowMarker{})
}

// Skipf marks the case as skipped and stops the body.
func (t *T) Skipf(format string, args ...any) {
	t.mu.Lock()
	t.skipped = true
	t.mu.Unlock()
	t.log.Debug("Case skipped", "case", t.caseName, "reason", fmt.Sprintf(format, args...))
	panic(skipMarker{})
}

// SkipNow marks the case as skipped and stops the body.
func (t *T) SkipNow() {
	t.mu.Lock()
	t.skipped = true
	t.mu.Unlock()
	panic(skipMarker{})
}

// ExpectFailure declares that this case is expected to fail. Recorded
// failures and faults then count as expected failures; a clean run counts as
// an unexpected success.
func (t *T) ExpectFailure() {
	t.mu.Lock()
	t.expectFailure = true
	t.mu.Unlock()
}

// Failed reports whether a failure or fault has been recorded so far.
func (t *T) Failed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.failures) > 0 || len(t.errors) > 0
}

func (t *T) recordFailure(msg string, callerSkip int) {
	detail := fmt.Sprintf("%s: %s\n%s", callerRef(callerSkip+1), msg, debug.Stack())
	t.mu.Lock()
	t.failures = append(t.failures, detail)
	t.mu.Unlock()
	t.log.Debug("Assertion failure recorded", "case", t.caseName, "failure", msg)
}

func (t *T) recordFault(r any) {
	detail := fmt.Sprintf("%T: %v\n%s", r, r, debug.Stack())
	t.mu.Lock()
	t.errors = append(t.errors, detail)
	t.mu.Unlock()
	t.log.Debug("Fault recorded", "case", t.caseName, "fault", fmt.Sprintf("%v", r))
}

func callerRef(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

// ExecOptions carries the configuration echoes an OutcomeRecord reports back
// to the parent.
type ExecOptions struct {
	FailFast         bool
	BufferOutput     bool
	CaptureLocals    bool
	MirrorStdStreams bool
	Log              log.Logger
}

// ExecuteCase runs one case body to completion on the calling goroutine and
// returns its OutcomeRecord. Panics from the body are contained: assertion
// sentinels resolve to their recorded state, anything else is an uncaught
// fault. ExecuteCase itself never panics.
func ExecuteCase(c Case, h binder.Handle, opts ExecOptions) *OutcomeRecord {
	logger := opts.Log
	if logger == nil {
		logger = log.New()
	}

	t := &T{
		caseName: c.Name,
		handle:   h,
		log:      logger,
	}

	func() {
		defer func() {
			r := recover()
			switch r.(type) {
			case nil, failNowMarker, skipMarker:
				// Outcome already recorded on t.
			default:
				t.recordFault(r)
			}
		}()
		c.Run(t)
	}()

	return t.buildOutcome(opts)
}

// buildOutcome freezes the recorded state into an OutcomeRecord. RanCount is
// always exactly 1: one case per isolated context.
func (t *T) buildOutcome(opts ExecOptions) *OutcomeRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := &OutcomeRecord{
		RanCount:         1,
		WasSkipped:       t.skipped,
		BufferOutput:     opts.BufferOutput,
		CaptureLocals:    opts.CaptureLocals,
		MirrorStdStreams: opts.MirrorStdStreams,
	}

	if t.expectFailure {
		if len(t.failures) == 0 && len(t.errors) == 0 {
			rec.HadUnexpectedSuccess = true
		} else {
			rec.ExpectedFailures = append(rec.ExpectedFailures, t.failures...)
			rec.ExpectedFailures = append(rec.ExpectedFailures, t.errors...)
		}
	} else {
		rec.Failures = append(rec.Failures, t.failures...)
		rec.Errors = append(rec.Errors, t.errors...)
	}

	if opts.FailFast && (len(rec.Failures) > 0 || len(rec.Errors) > 0 || rec.HadUnexpectedSuccess) {
		rec.StopRequested = true
	}

	return rec
}
