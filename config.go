package bindertest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"

	"github.com/redpesk-common/bindertest/flags"
	"github.com/redpesk-common/bindertest/runner"
)

// Config holds the harness configuration
type Config struct {
	ComponentsFile string               // Path to the components-under-test file (optional)
	ComponentDir   string               // Directory for resolving component paths
	Isolation      runner.IsolationMode // Per-case isolation mode
	TAP            bool                 // Stream results as TAP on stdout
	FailFast       bool                 // Stop the suite after the first failing case
	RunInterval    time.Duration        // Interval between suite runs
	RunOnce        bool                 // Indicates if the service should exit after one suite run
	Log            log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	isolation := runner.IsolationMode(ctx.String(flags.Isolation.Name))
	if !isolation.Valid() {
		return nil, fmt.Errorf("invalid isolation mode: %s. Must be one of: %s, %s",
			isolation, runner.IsolationProcess, runner.IsolationLoop)
	}

	componentsFile := ctx.String(flags.Components.Name)
	if componentsFile != "" {
		var err error
		componentsFile, err = filepath.Abs(componentsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for components file '%s': %w", componentsFile, err)
		}
	}

	componentDir := ctx.String(flags.ComponentDir.Name)
	if componentDir != "" {
		var err error
		componentDir, err = filepath.Abs(componentDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for component directory '%s': %w", componentDir, err)
		}
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	return &Config{
		ComponentsFile: componentsFile,
		ComponentDir:   componentDir,
		Isolation:      isolation,
		TAP:            ctx.Bool(flags.TAP.Name),
		FailFast:       ctx.Bool(flags.FailFast.Name),
		RunInterval:    runInterval,
		RunOnce:        runOnce,
		Log:            log,
	}, nil
}

// exportChildEnv mirrors the parts of the configuration an isolated child
// needs into the environment. Children are re-executed without arguments, so
// the inherited environment is their only configuration channel.
func exportChildEnv(cfg *Config) {
	os.Setenv(flags.Components.EnvVars[0], cfg.ComponentsFile)
	os.Setenv(flags.ComponentDir.EnvVars[0], cfg.ComponentDir)
	if cfg.FailFast {
		os.Setenv(flags.FailFast.EnvVars[0], "true")
	}
}
