package bindertest

import (
	"bufio"
	"context"
	"os"

	"github.com/ethereum/go-ethereum/log"

	"github.com/redpesk-common/bindertest/registry"
	"github.com/redpesk-common/bindertest/reporting"
	"github.com/redpesk-common/bindertest/runner"
	"github.com/redpesk-common/bindertest/types"
)

// TestExecutor is responsible for running the suite.
type TestExecutor interface {
	RunTests(ctx context.Context) (*runner.SuiteResult, error)
}

// DefaultTestExecutor implements the TestExecutor interface. It builds a
// fresh runner per run so that each run emits its own TAP plan with the
// case count current at that moment.
type DefaultTestExecutor struct {
	registry  *registry.Registry
	isolation runner.IsolationMode
	tap       bool
	failFast  bool
	logger    log.Logger
}

// NewDefaultTestExecutor creates a new DefaultTestExecutor.
func NewDefaultTestExecutor(reg *registry.Registry, cfg *Config) *DefaultTestExecutor {
	return &DefaultTestExecutor{
		registry:  reg,
		isolation: cfg.Isolation,
		tap:       cfg.TAP,
		failFast:  cfg.FailFast,
		logger:    cfg.Log,
	}
}

// RunTests runs the whole suite once and returns the results.
func (e *DefaultTestExecutor) RunTests(ctx context.Context) (*runner.SuiteResult, error) {
	e.logger.Info("Running all cases...")

	var tapOut *bufio.Writer
	var rep runner.Reporter
	if e.tap {
		tapOut = bufio.NewWriter(os.Stdout)
		rep = reporting.NewTAPReporter(tapOut, len(e.registry.Cases()))
	}

	testRunner, err := runner.NewTestRunner(runner.Config{
		Registry:  e.registry,
		Log:       e.logger,
		Isolation: e.isolation,
		Reporter:  rep,
		Exec:      types.ExecOptions{FailFast: e.failFast, Log: e.logger},
	})
	if err != nil {
		return nil, err
	}

	result, err := testRunner.RunAllTests(ctx)
	if tapOut != nil {
		_ = tapOut.Flush()
	}
	if err != nil {
		e.logger.Error("Error running tests", "error", err)
		return nil, err
	}

	e.logger.Info("Test run completed", "run_id", result.RunID, "status", result.Status)
	return result, nil
}
