// Package reporting renders suite results for machine consumption. The TAP
// stream is the reporting surface consumed by CI tooling: a plan line, then
// exactly one ok/not ok line per case in execution order.
package reporting

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
)

// flusher is implemented by buffered writers. Every TAP write is flushed
// immediately so that a suite crashing mid-run still leaves a valid partial
// stream.
type flusher interface {
	Flush() error
}

// TAPReporter writes line-oriented TAP. Indices are 0-based and increment
// after each case line regardless of outcome.
type TAPReporter struct {
	mu    sync.Mutex
	w     io.Writer
	index int
}

// NewTAPReporter creates a reporter for a suite of total cases and
// immediately writes the plan line "1..<total>".
func NewTAPReporter(w io.Writer, total int) *TAPReporter {
	r := &TAPReporter{w: w}
	r.writeLine(fmt.Sprintf("1..%d", total))
	return r
}

// Success implements runner.Reporter.
func (r *TAPReporter) Success(description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeLine(fmt.Sprintf("ok %d - %s", r.index, description))
	r.index++
}

// Failure implements runner.Reporter. The fault is printed fully rendered,
// line by line, after the not-ok line.
func (r *TAPReporter) Failure(description string, fault string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeLine(fmt.Sprintf("not ok %d - %s # Exception:", r.index, description))
	r.index++

	fault = strings.TrimRight(stripansi.Strip(fault), "\n")
	if fault == "" {
		return
	}
	for _, line := range strings.Split(fault, "\n") {
		r.writeLine(line)
	}
}

func (r *TAPReporter) writeLine(line string) {
	if _, err := fmt.Fprintln(r.w, line); err != nil {
		return
	}
	if f, ok := r.w.(flusher); ok {
		_ = f.Flush()
	}
}
