// Package runner executes registered test cases, one isolated context per
// case, and merges each transmitted outcome into the suite aggregate.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/redpesk-common/bindertest/metrics"
	"github.com/redpesk-common/bindertest/registry"
	"github.com/redpesk-common/bindertest/types"
)

// Reporter consumes one "case completed" notification per case, in execution
// order. The TAP reporter is the canonical implementation.
type Reporter interface {
	// Success reports a case that passed (or was skipped).
	Success(description string)
	// Failure reports a failed or errored case together with its fully
	// rendered fault.
	Failure(description string, fault string)
}

// CaseResult is the parent-side view of one executed case, kept for the
// console summary.
type CaseResult struct {
	Name        string
	Description string
	Status      types.TestStatus
	Duration    time.Duration
	Detail      string // leading diagnostic for failed/errored cases
}

// ResultStats tracks suite-level counters.
type ResultStats struct {
	Total     int
	Passed    int
	Failed    int
	Errored   int
	Skipped   int
	StartTime time.Time
	EndTime   time.Time
}

// SuiteResult captures the complete run: the merged aggregate plus the
// per-case views in execution order.
type SuiteResult struct {
	RunID     string
	Aggregate types.AggregateResult
	Cases     []CaseResult
	Stats     ResultStats
	Status    types.TestStatus
	Duration  time.Duration
}

// String summarizes the run for the console.
func (r *SuiteResult) String() string {
	return fmt.Sprintf("run %s: %s (%s)", r.RunID, r.Aggregate.String(), r.Status)
}

// TestRunner defines the interface for executing the registered suite.
type TestRunner interface {
	RunAllTests(ctx context.Context) (*SuiteResult, error)
	RunTest(ctx context.Context, c types.Case) (*types.OutcomeRecord, error)
}

// Config holds configuration for creating a new runner.
type Config struct {
	Registry  *registry.Registry
	Log       log.Logger
	Isolation IsolationMode
	Reporter  Reporter // optional; nil disables streaming notifications
	Exec      types.ExecOptions
}

// runner implements TestRunner. Cases run strictly one at a time: the next
// isolated context is never created before the previous one has fully
// terminated and its outcome has been merged.
type runner struct {
	reg      *registry.Registry
	log      log.Logger
	isolator isolator
	reporter Reporter
	exec     types.ExecOptions
	runID    string
	tracer   trace.Tracer
}

// NewTestRunner creates a new test runner instance.
func NewTestRunner(cfg Config) (TestRunner, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Isolation == "" {
		cfg.Isolation = IsolationProcess
	}
	if !cfg.Isolation.Valid() {
		return nil, fmt.Errorf("invalid isolation mode %q", cfg.Isolation)
	}
	if cfg.Exec.Log == nil {
		cfg.Exec.Log = cfg.Log
	}

	r := &runner{
		reg:      cfg.Registry,
		log:      cfg.Log,
		reporter: cfg.Reporter,
		exec:     cfg.Exec,
		tracer:   otel.Tracer("test runner"),
	}

	switch cfg.Isolation {
	case IsolationProcess:
		r.isolator = &processIsolator{log: cfg.Log}
	case IsolationLoop:
		r.isolator = &loopIsolator{reg: cfg.Registry, opts: cfg.Exec, log: cfg.Log}
	}

	cfg.Log.Debug("NewTestRunner()", "isolation", cfg.Isolation, "len(cases)", len(cfg.Registry.Cases()))
	return r, nil
}

// RunAllTests implements the TestRunner interface. It freezes the registry,
// runs every registered case sequentially, and merges each decoded outcome
// into the suite aggregate as it arrives.
func (r *runner) RunAllTests(ctx context.Context) (*SuiteResult, error) {
	r.runID = uuid.New().String()
	defer func() { r.runID = "" }()

	ctx, span := r.tracer.Start(ctx, "suite run")
	defer span.End()

	// No registration may happen once the first isolated context exists.
	r.reg.Freeze()

	start := time.Now()
	result := &SuiteResult{
		RunID: r.runID,
		Stats: ResultStats{StartTime: start},
	}

	cases := r.reg.Cases()
	r.log.Debug("Running all cases", "run_id", r.runID, "count", len(cases))

	for _, c := range cases {
		caseStart := time.Now()
		rec, err := r.RunTest(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("running case %s: %w", c.Name, err)
		}

		result.Aggregate.Merge(rec, c.Name)
		result.Cases = append(result.Cases, CaseResult{
			Name:        c.Name,
			Description: c.DisplayName(),
			Status:      rec.Status(),
			Duration:    time.Since(caseStart),
			Detail:      rec.FirstDetail(),
		})
		updateStats(&result.Stats, rec.Status())
		r.notify(c, rec)

		// A fail-fast signal discovered after merge halts the remainder of
		// the suite.
		if result.Aggregate.StopRequested {
			r.log.Info("Stop requested, halting suite", "after", c.Name)
			break
		}
	}

	result.Duration = time.Since(start)
	result.Stats.EndTime = time.Now()
	result.Status = result.Aggregate.Status()
	return result, nil
}

// RunTest implements the TestRunner interface: it runs one case in a fresh
// isolated context and returns the decoded OutcomeRecord. Per-case faults
// never propagate as errors; the returned error is reserved for runtime
// failures of the harness itself.
func (r *runner) RunTest(ctx context.Context, c types.Case) (rec *types.OutcomeRecord, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("Panic in RunTest", "case", c.Name, "panic", p)
			err = fmt.Errorf("runtime error: %v", p)
		}
	}()

	ctx, span := r.tracer.Start(ctx, fmt.Sprintf("case %s", c.Name))
	defer span.End()

	r.log.Info("Running case", "case", c.Name)
	start := time.Now()

	data, runErr := r.isolator.Run(ctx, c.Name)
	if runErr != nil {
		// The context could not be spawned or drained. The suite proceeds
		// to the next case; this one is reported as a synthetic error.
		r.log.Error("Isolated context failed", "case", c.Name, "err", runErr)
		metrics.RecordTruncation(r.runID, c.Name)
		rec = SyntheticOutcome(fmt.Sprintf("isolated context failure: %v", runErr))
	} else {
		var truncated bool
		rec, truncated = DecodeOutcome(data)
		if truncated {
			metrics.RecordTruncation(r.runID, c.Name)
		}
	}

	status := rec.Status()
	metrics.RecordCase(r.runID, c.Name, status)
	r.log.Debug("Case complete", "case", c.Name, "status", status, "duration", time.Since(start))
	return rec, nil
}

// notify streams the case completion to the reporter, if any.
func (r *runner) notify(c types.Case, rec *types.OutcomeRecord) {
	if r.reporter == nil {
		return
	}
	if rec.Passed() {
		r.reporter.Success(c.DisplayName())
		return
	}
	r.reporter.Failure(c.DisplayName(), rec.FirstDetail())
}

func updateStats(stats *ResultStats, status types.TestStatus) {
	stats.Total++
	switch status {
	case types.TestStatusPass:
		stats.Passed++
	case types.TestStatusFail:
		stats.Failed++
	case types.TestStatusError:
		stats.Errored++
	case types.TestStatusSkip:
		stats.Skipped++
	}
}
