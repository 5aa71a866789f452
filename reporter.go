package bindertest

import (
	"github.com/redpesk-common/bindertest/metrics"
	"github.com/redpesk-common/bindertest/runner"
)

// MetricsReporter is responsible for reporting metrics from suite results.
type MetricsReporter interface {
	ReportResults(runID string, result *runner.SuiteResult)
}

// DefaultMetricsReporter implements the MetricsReporter interface.
type DefaultMetricsReporter struct{}

// NewDefaultMetricsReporter creates a new DefaultMetricsReporter.
func NewDefaultMetricsReporter() *DefaultMetricsReporter {
	return &DefaultMetricsReporter{}
}

// ReportResults reports the suite results to metrics systems.
func (r *DefaultMetricsReporter) ReportResults(runID string, result *runner.SuiteResult) {
	metrics.RecordSuite(
		runID,
		string(result.Status),
		result.Stats.Total,
		result.Stats.Passed,
		result.Stats.Failed+result.Stats.Errored,
		result.Duration,
	)
}
