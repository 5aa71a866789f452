package bindertest

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"

	"github.com/redpesk-common/bindertest/exitcodes"
	"github.com/redpesk-common/bindertest/flags"
	"github.com/redpesk-common/bindertest/registry"
	"github.com/redpesk-common/bindertest/runner"
	"github.com/redpesk-common/bindertest/service"
	"github.com/redpesk-common/bindertest/types"
)

// Main is the shared entry point for suite binaries. The register callback
// populates the registry with the binary's components and cases; it runs in
// the parent and again, identically, in every re-executed isolated child.
func Main(appName, version string, register func(*registry.Registry) error) {
	// The isolated-child check must come before any CLI parsing: children are
	// spawned without arguments and configured through the environment.
	runIsolatedChild(register)

	app := cli.NewApp()
	app.Version = version
	app.Name = appName
	app.Usage = "Binder component acceptance test harness"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(func(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
		return run(ctx, version, register, closeApp)
	})
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// Check for typed runtime errors
			if IsRuntimeError(err) {
				// For runtime errors, use exit code 2
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else if IsTestFailureError(err) {
				// For test failures, use exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			} else {
				// For other unspecified errors, default to exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			}
		}
	}

	// Start telemetry
	shutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start server
	ctx := context.Background()
	svc := service.New()
	svc.Start(ctx)
	defer svc.Shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx *cli.Context, version string, register func(*registry.Registry) error, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := NewConfig(ctx, log)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg)

	h, err := New(ctx.Context, cfg, version, register, closeApp)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, NewRuntimeError(fmt.Errorf("failed to create harness: %w", err))
	}

	return h, nil
}

// runIsolatedChild rebuilds the registry from the inherited environment and
// runs the single designated case. It never returns when the child marker is
// set.
func runIsolatedChild(register func(*registry.Registry) error) {
	if os.Getenv(runner.ChildCaseEnv) == "" {
		return
	}

	logger := oplog.NewLogger(os.Stderr, oplog.DefaultCLIConfig())
	reg, err := registry.NewRegistry(registry.Config{
		Log:            logger,
		ComponentsFile: os.Getenv(flags.Components.EnvVars[0]),
		ComponentDir:   os.Getenv(flags.ComponentDir.EnvVars[0]),
	})
	if err != nil {
		// The parent observes the missing outcome as a transport truncation.
		logger.Error("Failed to rebuild registry in isolated context", "err", err)
		os.Exit(exitcodes.RuntimeErr)
	}
	if err := register(reg); err != nil {
		logger.Error("Failed to register suite in isolated context", "err", err)
		os.Exit(exitcodes.RuntimeErr)
	}

	runner.RunChildIfRequested(reg, types.ExecOptions{
		FailFast: os.Getenv(flags.FailFast.EnvVars[0]) != "",
		Log:      logger,
	})
}
