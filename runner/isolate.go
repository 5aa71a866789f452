package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/ethereum/go-ethereum/log"

	"github.com/redpesk-common/bindertest/registry"
	"github.com/redpesk-common/bindertest/types"
)

// IsolationMode selects how the per-case isolated context is created.
type IsolationMode string

const (
	// IsolationProcess re-executes the harness binary for each case. This
	// is the default: the runtime and its event loop live and die with the
	// child process, so no residual state can leak between cases.
	IsolationProcess IsolationMode = "process"

	// IsolationLoop runs each case on a fresh in-process runtime instance.
	// It is only safe for runtime factories that support true
	// multi-instantiation, such as the loopback runtime.
	IsolationLoop IsolationMode = "loop"
)

// Valid reports whether the mode is one of the supported isolation modes.
func (m IsolationMode) Valid() bool {
	return m == IsolationProcess || m == IsolationLoop
}

// isolator creates one isolated context, runs a single named case in it, and
// returns the raw bytes the context transmitted before fully terminating.
// The returned bytes may be empty or truncated; the codec is responsible for
// turning that into a synthetic outcome. An error means the context could
// not even be spawned.
type isolator interface {
	Run(ctx context.Context, caseName string) ([]byte, error)
}

// processIsolator spawns an isolated child process per case.
type processIsolator struct {
	log log.Logger
}

func (p *processIsolator) Run(ctx context.Context, caseName string) ([]byte, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating harness binary: %w", err)
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating outcome channel: %w", err)
	}
	defer r.Close()

	cmd := exec.CommandContext(ctx, exe)
	cmd.Env = append(os.Environ(), ChildCaseEnv+"="+caseName)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{w} // becomes the child's outcome fd

	p.log.Debug("Spawning isolated context", "case", caseName, "binary", exe)
	if err := cmd.Start(); err != nil {
		w.Close()
		return nil, fmt.Errorf("spawning isolated context for %q: %w", caseName, err)
	}

	// Close our copy of the write end immediately so that end-of-transmission
	// is observable: the read below returns EOF as soon as the child's copy
	// is gone, whether it wrote an outcome or crashed first.
	w.Close()

	data, readErr := io.ReadAll(r)

	// The channel is fully drained; now wait for the context to terminate
	// before the suite moves on to the next case.
	waitErr := cmd.Wait()
	if waitErr != nil {
		p.log.Debug("Isolated context exited", "case", caseName, "err", waitErr)
	} else {
		p.log.Debug("Isolated context exited", "case", caseName, "code", cmd.ProcessState.ExitCode())
	}

	if readErr != nil {
		return nil, fmt.Errorf("draining outcome channel for %q: %w", caseName, readErr)
	}
	return data, nil
}

// loopIsolator gives each case a fresh in-process runtime, with the outcome
// crossing a pipe exactly as it would across a process boundary.
type loopIsolator struct {
	reg  *registry.Registry
	opts types.ExecOptions
	log  log.Logger
}

func (l *loopIsolator) Run(ctx context.Context, caseName string) ([]byte, error) {
	c, ok := l.reg.CaseByName(caseName)
	if !ok {
		return nil, fmt.Errorf("unknown case %q", caseName)
	}

	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		code := executeIsolated(c, l.reg, l.opts, pw, l.log)
		l.log.Debug("Isolated loop finished", "case", caseName, "code", code)
	}()

	data, err := io.ReadAll(pr)
	<-done // the context must fully terminate before the next case
	if err != nil {
		return nil, fmt.Errorf("draining outcome channel for %q: %w", caseName, err)
	}
	return data, nil
}
