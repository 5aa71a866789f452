// Package registry holds the process-wide test registration state: the
// binder configuration, the components under test, and the case list. The
// state is write-once: the harness freezes the registry before the first
// isolated context is spawned, and any later mutation is an error.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"gopkg.in/yaml.v3"

	"github.com/redpesk-common/bindertest/binder"
	"github.com/redpesk-common/bindertest/types"
)

// ComponentDirEnv names the directory under which component binaries are
// located. It is used only for components registered without an explicit
// path.
const ComponentDirEnv = "BINDERTEST_COMPONENT_DIR"

// Config contains registry configuration.
type Config struct {
	Log            log.Logger
	BinderConfig   binder.Config
	Factory        binder.Factory
	ComponentsFile string // optional YAML file listing components under test
	ComponentDir   string // overrides ComponentDirEnv for path resolution
}

// Registry manages the registered binder configuration, components and cases.
type Registry struct {
	log log.Logger

	mu         sync.RWMutex
	factory    binder.Factory
	frozen     bool
	configured bool
	binderCfg  binder.Config
	components []binder.ComponentConfig
	caseNames  map[string]int
	cases      []types.Case
	dir        string
}

// componentsFile is the YAML shape of a components-under-test file.
type componentsFile struct {
	Components []struct {
		UID  string `yaml:"uid"`
		Path string `yaml:"path,omitempty"`
	} `yaml:"components"`
}

// NewRegistry creates a registry. All errors here are configuration errors:
// they are fatal before any test runs.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.Factory == nil {
		cfg.Log.Warn("No runtime factory provided, using in-process loop runtime")
		cfg.Factory = binder.LoopFactory
	}
	configured := cfg.BinderConfig.Identity != "" || cfg.BinderConfig.RootDir != "" ||
		cfg.BinderConfig.Verbosity != 0 || cfg.BinderConfig.ListenPort != 0 ||
		cfg.BinderConfig.Set != nil

	r := &Registry{
		log:        cfg.Log,
		factory:    cfg.Factory,
		configured: configured,
		binderCfg:  normalizeConfig(cfg.BinderConfig, cfg.Log),
		caseNames:  make(map[string]int),
		dir:        cfg.ComponentDir,
	}

	if cfg.ComponentsFile != "" {
		if err := r.loadComponentsFile(cfg.ComponentsFile); err != nil {
			return nil, fmt.Errorf("failed to load components file: %w", err)
		}
	}

	cfg.Log.Debug("Registry created", "uid", r.binderCfg.Identity,
		"len(components)", len(r.components))
	return r, nil
}

// normalizeConfig fills runtime-config defaults and clears the listen port.
// No test run ever opens a listening socket.
func normalizeConfig(cfg binder.Config, logger log.Logger) binder.Config {
	if cfg.Identity == "" {
		cfg.Identity = "bindertest"
	}
	if cfg.RootDir == "" {
		cfg.RootDir = "."
	}
	if cfg.ListenPort != 0 {
		logger.Debug("Ignoring configured listen port for tests", "port", cfg.ListenPort)
		cfg.ListenPort = 0
	}
	return cfg
}

// Configure registers the runtime configuration. Configuration is one-shot:
// a second call, or any call after the registry is frozen, is an error.
func (r *Registry) Configure(cfg binder.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registry is frozen: cannot configure runtime")
	}
	if r.configured {
		return fmt.Errorf("runtime configuration already set")
	}

	r.binderCfg = normalizeConfig(cfg, r.log)
	r.configured = true
	r.log.Debug("Runtime configured", "uid", r.binderCfg.Identity)
	return nil
}

func (r *Registry) loadComponentsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var file componentsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for _, c := range file.Components {
		if err := r.AddComponent(binder.ComponentConfig{Identity: c.UID, Path: c.Path}); err != nil {
			return err
		}
	}
	return nil
}

// AddComponent registers one component under test. A component without an
// explicit path is resolved against the configured component directory, or
// against ComponentDirEnv.
func (r *Registry) AddComponent(c binder.ComponentConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registry is frozen: cannot add component %q", c.Identity)
	}
	if c.Identity == "" {
		return fmt.Errorf("component identity is required")
	}
	for _, existing := range r.components {
		if existing.Identity == c.Identity {
			return fmt.Errorf("component %q already registered", c.Identity)
		}
	}

	if c.Path == "" {
		dir := r.dir
		if dir == "" {
			dir = os.Getenv(ComponentDirEnv)
		}
		if dir == "" {
			return fmt.Errorf("component %q has no path and no component directory is set (%s)",
				c.Identity, ComponentDirEnv)
		}
		c.Path = filepath.Join(dir, c.Identity+".so")
		r.log.Debug("Resolved component path", "uid", c.Identity, "path", c.Path)
	}

	r.components = append(r.components, c)
	return nil
}

// AddCase registers one test case. Case names must be unique.
func (r *Registry) AddCase(c types.Case) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registry is frozen: cannot add case %q", c.Name)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if _, ok := r.caseNames[c.Name]; ok {
		return fmt.Errorf("case %q already registered", c.Name)
	}

	r.caseNames[c.Name] = len(r.cases)
	r.cases = append(r.cases, c)
	return nil
}

// Freeze makes the registry immutable. It is called by the runner before the
// first isolated context is created and is idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.frozen {
		r.frozen = true
		r.log.Debug("Registry frozen", "len(cases)", len(r.cases))
	}
}

// Frozen reports whether the registry is immutable.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// BinderConfig returns the registered runtime configuration.
func (r *Registry) BinderConfig() binder.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.binderCfg
}

// SetFactory replaces the runtime factory. Registration callbacks use it to
// run their cases against a runtime other than the in-process loop default.
// Like every other mutation it is rejected once the registry is frozen.
func (r *Registry) SetFactory(f binder.Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registry is frozen: cannot set runtime factory")
	}
	if f == nil {
		return fmt.Errorf("runtime factory is required")
	}

	r.factory = f
	return nil
}

// Factory returns the runtime factory.
func (r *Registry) Factory() binder.Factory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.factory
}

// Components returns the registered components in registration order.
func (r *Registry) Components() []binder.ComponentConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]binder.ComponentConfig, len(r.components))
	copy(out, r.components)
	return out
}

// Cases returns the registered cases in registration order.
func (r *Registry) Cases() []types.Case {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Case, len(r.cases))
	copy(out, r.cases)
	return out
}

// CaseByName looks up one registered case. The isolated child uses it to
// find the single case it was spawned for.
func (r *Registry) CaseByName(name string) (types.Case, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.caseNames[name]
	if !ok {
		return types.Case{}, false
	}
	return r.cases[idx], true
}
