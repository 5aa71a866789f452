package types

import (
	"fmt"
	"strings"
)

// OutcomeRecord captures the result of executing exactly one test case
// inside an isolated context. Every textual detail is a fully rendered,
// self-contained diagnostic (message plus stack trace): the originating
// context does not outlive the record's transmission, so nothing can be
// resolved lazily on the parent side.
//
// Field names on the wire are stable; decoders ignore unknown fields, so
// fields can be added without breaking older decoders within one suite run.
type OutcomeRecord struct {
	RanCount             int      `json:"ranCount"`
	Failures             []string `json:"failures"`
	Errors               []string `json:"errors"`
	ExpectedFailures     []string `json:"expectedFailures"`
	HadUnexpectedSuccess bool     `json:"hadUnexpectedSuccess"`
	WasSkipped           bool     `json:"wasSkipped"`
	StopRequested        bool     `json:"stopRequested"`
	BufferOutput         bool     `json:"bufferOutput"`
	CaptureLocals        bool     `json:"captureLocalsInTraceback"`
	MirrorStdStreams     bool     `json:"mirrorStdStreams"`
}

// Status derives the case's overall status. Errors rank above failures:
// an uncaught fault is reported as an error even if assertions also failed.
func (r *OutcomeRecord) Status() TestStatus {
	switch {
	case len(r.Errors) > 0:
		return TestStatusError
	case len(r.Failures) > 0:
		return TestStatusFail
	case r.HadUnexpectedSuccess:
		return TestStatusFail
	case r.WasSkipped:
		return TestStatusSkip
	default:
		return TestStatusPass
	}
}

// Passed reports whether the case completed without failures or errors.
func (r *OutcomeRecord) Passed() bool {
	s := r.Status()
	return s == TestStatusPass || s == TestStatusSkip
}

// FirstDetail returns the leading diagnostic for reporting, errors first.
func (r *OutcomeRecord) FirstDetail() string {
	if len(r.Errors) > 0 {
		return r.Errors[0]
	}
	if len(r.Failures) > 0 {
		return r.Failures[0]
	}
	return ""
}

// DetailEntry attributes one diagnostic string to the case that produced it.
// The raw OutcomeRecord stores only the string half; the attribution is
// supplied at merge time by the runner, which knows which case it just ran.
type DetailEntry struct {
	Case   string
	Detail string
}

// AggregateResult is the parent-owned accumulation of OutcomeRecords across
// a whole suite. It grows monotonically: counters are summed, detail lists
// appended in execution order, boolean flags OR-ed.
type AggregateResult struct {
	RanCount            int
	Failures            []DetailEntry
	Errors              []DetailEntry
	ExpectedFailures    []DetailEntry
	UnexpectedSuccesses []string
	Skipped             []string
	StopRequested       bool
	BufferOutput        bool
	CaptureLocals       bool
	MirrorStdStreams    bool
}

// Merge folds one case's record into the aggregate. Records are merged
// exactly once, in execution order.
func (a *AggregateResult) Merge(rec *OutcomeRecord, caseName string) {
	a.RanCount += rec.RanCount
	for _, d := range rec.Failures {
		a.Failures = append(a.Failures, DetailEntry{Case: caseName, Detail: d})
	}
	for _, d := range rec.Errors {
		a.Errors = append(a.Errors, DetailEntry{Case: caseName, Detail: d})
	}
	for _, d := range rec.ExpectedFailures {
		a.ExpectedFailures = append(a.ExpectedFailures, DetailEntry{Case: caseName, Detail: d})
	}
	if rec.HadUnexpectedSuccess {
		a.UnexpectedSuccesses = append(a.UnexpectedSuccesses, caseName)
	}
	if rec.WasSkipped {
		a.Skipped = append(a.Skipped, caseName)
	}
	a.StopRequested = a.StopRequested || rec.StopRequested
	a.BufferOutput = a.BufferOutput || rec.BufferOutput
	a.CaptureLocals = a.CaptureLocals || rec.CaptureLocals
	a.MirrorStdStreams = a.MirrorStdStreams || rec.MirrorStdStreams
}

// Status derives the suite-level status from the accumulated details.
func (a *AggregateResult) Status() TestStatus {
	switch {
	case len(a.Errors) > 0:
		return TestStatusError
	case len(a.Failures) > 0 || len(a.UnexpectedSuccesses) > 0:
		return TestStatusFail
	case a.RanCount == 0:
		return TestStatusSkip
	default:
		return TestStatusPass
	}
}

// Passed reports whether the whole suite is free of failures and errors.
func (a *AggregateResult) Passed() bool {
	return len(a.Failures) == 0 && len(a.Errors) == 0 && len(a.UnexpectedSuccesses) == 0
}

// String summarizes the aggregate for the console.
func (a *AggregateResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ran %d test(s): %d failure(s), %d error(s), %d skipped",
		a.RanCount, len(a.Failures), len(a.Errors), len(a.Skipped))
	if len(a.ExpectedFailures) > 0 {
		fmt.Fprintf(&b, ", %d expected failure(s)", len(a.ExpectedFailures))
	}
	if len(a.UnexpectedSuccesses) > 0 {
		fmt.Fprintf(&b, ", %d unexpected success(es)", len(a.UnexpectedSuccesses))
	}
	return b.String()
}
