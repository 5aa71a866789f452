package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	oprpc "github.com/ethereum-optimism/optimism/op-service/rpc"
)

const EnvVarPrefix = "BINDERTEST"

var (
	Components = &cli.StringFlag{
		Name:    "components",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COMPONENTS"),
		Usage:   "Path to components-under-test file (eg. 'components.yaml')",
	}
	ComponentDir = &cli.StringFlag{
		Name:    "component-dir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "COMPONENT_DIR"),
		Usage:   "Directory against which components without an explicit path are resolved",
	}
	Isolation = &cli.StringFlag{
		Name:    "isolation",
		Value:   "process",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ISOLATION"),
		Usage:   "Per-case isolation mode: 'process' (fresh child process) or 'loop' (fresh in-process runtime)",
	}
	TAP = &cli.BoolFlag{
		Name:    "tap",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TAP"),
		Usage:   "Stream results as TAP on stdout",
	}
	FailFast = &cli.BoolFlag{
		Name:    "fail-fast",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FAIL_FAST"),
		Usage:   "Stop the suite after the first failing case",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between suite runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	Components,
	ComponentDir,
	Isolation,
	TAP,
	FailFast,
	RunInterval,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oprpc.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}
