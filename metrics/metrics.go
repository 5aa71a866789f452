package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/redpesk-common/bindertest/types"
)

const (
	MetricsNamespace = "bindertest"
)

var (
	Debug                bool = true
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip, types.TestStatusError}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	casesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "cases_total",
		Help:      "Count of executed test cases",
	}, []string{
		"run_id",
		"name",
		"result",
	})

	truncationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "transport_truncations_total",
		Help:      "Count of isolated contexts that terminated without a full outcome",
	}, []string{
		"run_id",
		"name",
	})

	suiteResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_results",
		Help:      "Result of suite runs",
	}, []string{
		"run_id",
		"result",
	})

	suiteCaseTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_case_total",
		Help:      "Total number of cases per suite run",
	}, []string{
		"run_id",
	})

	suiteCasePassed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_case_passed",
		Help:      "Number of passed cases per suite run",
	}, []string{
		"run_id",
	})

	suiteCaseFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_case_failed",
		Help:      "Number of failed cases per suite run",
	}, []string{
		"run_id",
	})

	suiteDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_duration",
		Help:      "Duration of suite runs",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordCase(runID string, caseName string, result types.TestStatus) {
	if !isValidResult(result) {
		log.Error("RecordCase - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "cases_total",
			"run_id", runID,
			"case", caseName,
			"result", result)
	}
	casesTotal.WithLabelValues(runID, caseName, string(result)).Inc()
}

// RecordTruncation counts one isolated context that closed its outcome
// channel without transmitting a decodable record.
func RecordTruncation(runID string, caseName string) {
	if Debug {
		log.Debug("metric inc",
			"m", "transport_truncations_total",
			"run_id", runID,
			"case", caseName)
	}
	truncationsTotal.WithLabelValues(runID, caseName).Inc()
}

func RecordSuite(
	runID string,
	result string,
	total int,
	passed int,
	failed int,
	duration time.Duration,
) {
	suiteResults.WithLabelValues(runID, result).Set(1)
	suiteCaseTotal.WithLabelValues(runID).Add(float64(total))
	suiteCasePassed.WithLabelValues(runID).Add(float64(passed))
	suiteCaseFailed.WithLabelValues(runID).Add(float64(failed))
	suiteDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
