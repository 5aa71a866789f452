// Package bindertest drives acceptance tests against binder components: it
// owns the registered suite, runs every case in its own isolated context, and
// renders the merged results for the console, TAP consumers and metrics.
package bindertest

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"

	"github.com/redpesk-common/bindertest/exitcodes"
	"github.com/redpesk-common/bindertest/registry"
	"github.com/redpesk-common/bindertest/runner"
)

// harness implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &harness{}

// harness is the test service: it holds the frozen suite and schedules runs.
type harness struct {
	ctx       context.Context
	config    *Config
	version   string
	registry  *registry.Registry
	executor  TestExecutor
	scheduler *DefaultTestScheduler
	formatter ResultFormatter
	reporter  MetricsReporter
	result    *runner.SuiteResult

	shutdownCallback func(error) // Callback to signal application shutdown
}

// New builds the harness: it creates the registry, invokes the suite's
// registration callback, and exports the child environment so re-executed
// isolated contexts rebuild an identical registry.
func New(ctx context.Context, config *Config, version string, register func(*registry.Registry) error, shutdownCallback func(error)) (*harness, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if register == nil {
		return nil, errors.New("suite registration callback is required")
	}

	config.Log.Debug("Creating harness with config",
		"componentsFile", config.ComponentsFile,
		"componentDir", config.ComponentDir,
		"isolation", config.Isolation,
		"runInterval", config.RunInterval,
		"runOnce", config.RunOnce)

	reg, err := registry.NewRegistry(registry.Config{
		Log:            config.Log,
		ComponentsFile: config.ComponentsFile,
		ComponentDir:   config.ComponentDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}
	if err := register(reg); err != nil {
		return nil, fmt.Errorf("failed to register suite: %w", err)
	}

	// Isolated children inherit the environment instead of re-parsing flags.
	exportChildEnv(config)

	config.Log.Info("bindertest.New: created registry", "len(cases)", len(reg.Cases()))

	return &harness{
		ctx:              ctx,
		config:           config,
		version:          version,
		registry:         reg,
		executor:         NewDefaultTestExecutor(reg, config),
		formatter:        NewConsoleResultFormatter(config.Log),
		reporter:         NewDefaultMetricsReporter(),
		shutdownCallback: shutdownCallback,
	}, nil
}

// Start runs the suite, once or periodically at the configured interval.
// Start implements the cliapp.Lifecycle interface.
func (h *harness) Start(ctx context.Context) error {
	// Set up panic recovery to ensure we exit with code 2 for runtime errors
	defer func() {
		if r := recover(); r != nil {
			h.config.Log.Error("Runtime error occurred", "error", r)
			os.Exit(exitcodes.RuntimeErr)
		}
	}()

	h.ctx = ctx

	if h.config.RunOnce {
		h.config.Log.Info("Starting bindertest in run-once mode")
	} else {
		h.config.Log.Info("Starting bindertest in continuous mode", "interval", h.config.RunInterval)
	}

	h.scheduler = NewDefaultTestScheduler(h.config.RunInterval, h.config.RunOnce, h.config.Log)
	h.scheduler.RegisterCallback(h.runTests)

	if err := h.scheduler.Start(ctx); err != nil {
		h.config.Log.Error("Runtime error running tests", "error", err)
		return NewRuntimeError(err)
	}

	// If in run-once mode, trigger shutdown and return
	if h.config.RunOnce {
		h.config.Log.Info("Tests completed, exiting (run-once mode)")

		// Check if any cases failed and return appropriate exit code
		if h.result != nil && !h.result.Aggregate.Passed() {
			h.config.Log.Warn("Run-once suite completed with failures, returning exit code 1")
			return NewTestFailureError(h.result.String())
		}

		// Only need to call this when we're in run-once mode and all cases passed
		go func() {
			h.shutdownCallback(nil)
		}()
		return nil // Success (exit code 0)
	}

	h.config.Log.Debug("bindertest started successfully")
	return nil
}

// runTests runs the whole suite once and processes the results.
func (h *harness) runTests() error {
	result, err := h.executor.RunTests(h.ctx)
	if err != nil {
		// This is a runtime error (not a test failure)
		h.config.Log.Error("Runtime error running tests", "error", err)
		return err
	}
	h.result = result

	if !h.config.TAP {
		if err := h.formatter.FormatResults(result); err != nil {
			h.config.Log.Error("Error formatting results", "error", err)
		}
		fmt.Println(result.String())
	}
	h.reporter.ReportResults(result.RunID, result)

	h.config.Log.Info("Suite run completed", "run_id", result.RunID, "status", result.Status)
	return nil
}

// Stop stops the harness service.
// Stop implements the cliapp.Lifecycle interface.
func (h *harness) Stop(ctx context.Context) error {
	h.config.Log.Info("Stopping bindertest")
	if h.scheduler == nil {
		return nil
	}
	if err := h.scheduler.Stop(); err != nil {
		return err
	}
	h.config.Log.Info("bindertest stopped successfully")
	return nil
}

// Stopped returns true if the harness service is stopped.
// Stopped implements the cliapp.Lifecycle interface.
func (h *harness) Stopped() bool {
	if h.scheduler == nil {
		return true
	}
	return h.scheduler.Stopped()
}

// WaitForShutdown blocks until all goroutines have terminated.
// This is useful in tests to ensure complete cleanup before moving to the next test.
func (h *harness) WaitForShutdown(ctx context.Context) error {
	if h.scheduler == nil {
		return nil
	}
	return h.scheduler.WaitForShutdown(ctx)
}
