package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redpesk-common/bindertest/binder"
	"github.com/redpesk-common/bindertest/exitcodes"
	"github.com/redpesk-common/bindertest/registry"
	"github.com/redpesk-common/bindertest/types"
)

// helperFactoryEnv makes the helper suite install its own runtime factory,
// one that refuses to build. Children inherit it from the spawning test, so
// setting it proves an installed factory is the one isolated contexts use.
const helperFactoryEnv = "BINDERTEST_HELPER_FACTORY"

// helperRegistry is the suite the re-executed test binary serves when it is
// spawned as an isolated child. Parent-side tests build the same registry so
// case names line up on both sides of the process boundary.
func helperRegistry() *registry.Registry {
	reg, err := registry.NewRegistry(registry.Config{
		Log:     log.New(),
		Factory: binder.LoopFactory,
	})
	if err != nil {
		panic(err)
	}
	if os.Getenv(helperFactoryEnv) != "" {
		err := reg.SetFactory(func(cfg binder.Config) (binder.Handle, error) {
			return nil, errors.New("helper factory engaged")
		})
		if err != nil {
			panic(err)
		}
	}
	cases := []types.Case{
		{Name: "passing", Run: func(tc *types.T) {}},
		{Name: "failing", Run: func(tc *types.T) {
			tc.Errorf("deliberate assertion failure")
		}},
		{Name: "panicking", Run: func(tc *types.T) {
			panic("deliberate fault")
		}},
		{Name: "vanishing", Run: func(tc *types.T) {
			// Dies without transmitting an outcome.
			os.Exit(7)
		}},
	}
	for _, c := range cases {
		if err := reg.AddCase(c); err != nil {
			panic(err)
		}
	}
	return reg
}

// TestMain doubles as the isolated-child entry point: when the test binary is
// re-executed with the child marker set, it serves the helper suite instead
// of running the tests.
func TestMain(m *testing.M) {
	if os.Getenv(ChildCaseEnv) != "" {
		RunChildIfRequested(helperRegistry(), types.ExecOptions{Log: log.New()})
		// RunChildIfRequested never returns once the marker is set.
		os.Exit(exitcodes.RuntimeErr)
	}
	os.Exit(m.Run())
}

func TestIsolationModeValid(t *testing.T) {
	assert.True(t, IsolationProcess.Valid())
	assert.True(t, IsolationLoop.Valid())
	assert.False(t, IsolationMode("").Valid())
	assert.False(t, IsolationMode("thread").Valid())
}

func newProcessRunner(t *testing.T) TestRunner {
	t.Helper()
	r, err := NewTestRunner(Config{
		Registry:  helperRegistry(),
		Log:       log.New(),
		Isolation: IsolationProcess,
	})
	require.NoError(t, err)
	return r
}

func TestProcessIsolationPassingCase(t *testing.T) {
	r := newProcessRunner(t)
	rec, err := r.RunTest(context.Background(), types.Case{Name: "passing"})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.RanCount)
	assert.Equal(t, types.TestStatusPass, rec.Status())
}

func TestProcessIsolationFailingCase(t *testing.T) {
	r := newProcessRunner(t)
	rec, err := r.RunTest(context.Background(), types.Case{Name: "failing"})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.RanCount)
	assert.Equal(t, types.TestStatusFail, rec.Status())
	require.Len(t, rec.Failures, 1)
	assert.Contains(t, rec.Failures[0], "deliberate assertion failure")
}

func TestProcessIsolationFaultingCase(t *testing.T) {
	r := newProcessRunner(t)
	rec, err := r.RunTest(context.Background(), types.Case{Name: "panicking"})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.RanCount)
	assert.Equal(t, types.TestStatusError, rec.Status())
	require.Len(t, rec.Errors, 1)
	assert.Contains(t, rec.Errors[0], "deliberate fault")
}

func TestProcessIsolationChildDiesWithoutOutcome(t *testing.T) {
	// The child exits mid-case without transmitting anything. The parent must
	// degrade to a synthetic error rather than crash or hang.
	r := newProcessRunner(t)
	rec, err := r.RunTest(context.Background(), types.Case{Name: "vanishing"})
	require.NoError(t, err)
	assert.Zero(t, rec.RanCount)
	assert.Equal(t, types.TestStatusError, rec.Status())
	require.Len(t, rec.Errors, 1)
	assert.Contains(t, rec.Errors[0], "without transmitting an outcome")
}

func TestProcessIsolationUsesInstalledFactory(t *testing.T) {
	// The child rebuilds the registry through the same registration code as
	// the parent, so the factory installed there must be the one its
	// isolated context builds the runtime with.
	t.Setenv(helperFactoryEnv, "1")

	r := newProcessRunner(t)
	rec, err := r.RunTest(context.Background(), types.Case{Name: "passing"})
	require.NoError(t, err)
	assert.Zero(t, rec.RanCount)
	assert.Equal(t, types.TestStatusError, rec.Status())
	require.Len(t, rec.Errors, 1)
	assert.Contains(t, rec.Errors[0], "helper factory engaged")
}

func TestProcessIsolationUnknownCase(t *testing.T) {
	// The parent asks for a case the child's registry does not know. The
	// child reports it; the outcome still crosses the pipe intact.
	r := newProcessRunner(t)
	rec, err := r.RunTest(context.Background(), types.Case{Name: "ghost"})
	require.NoError(t, err)
	assert.Zero(t, rec.RanCount)
	assert.Equal(t, types.TestStatusError, rec.Status())
	require.Len(t, rec.Errors, 1)
	assert.Contains(t, rec.Errors[0], `unknown case "ghost"`)
}

// outcomeSink is an in-memory stand-in for the child's outcome channel.
type outcomeSink struct{ bytes.Buffer }

func (s *outcomeSink) Close() error { return nil }

func TestRunChildUnknownCaseExitCode(t *testing.T) {
	var sink outcomeSink
	code := RunChild(helperRegistry(), "ghost", types.ExecOptions{Log: log.New()}, &sink)
	assert.Equal(t, exitcodes.RuntimeErr, code)

	rec, truncated := DecodeOutcome(sink.Bytes())
	assert.False(t, truncated, "the child transmitted the record in full")
	require.Len(t, rec.Errors, 1)
	assert.Contains(t, rec.Errors[0], `unknown case "ghost"`)
}
