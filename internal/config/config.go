// Package config loads the optional buildctl project file (buildctl.yaml or buildctl.toml).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/codex-k8s/buildctl/internal/env"
	"github.com/codex-k8s/buildctl/internal/toolchain"
)

// DefaultNames are probed, in order, when no project file is given explicitly.
var DefaultNames = []string{"buildctl.yaml", "buildctl.yml", "buildctl.toml"}

// ProjectConfig describes project-wide build defaults.
type ProjectConfig struct {
	// Home is the directory holding the top-level CMakeLists.txt.
	Home string `yaml:"home,omitempty" toml:"home"`
	// ToolchainsDir holds the <toolchain>.cmake files. Defaults to the project file directory.
	ToolchainsDir string `yaml:"toolchainsDir,omitempty" toml:"toolchains_dir"`
	// DefaultToolchain is used when neither --toolchain nor BUILDCTL_TOOLCHAIN is set.
	DefaultToolchain string `yaml:"defaultToolchain,omitempty" toml:"default_toolchain"`
	// DefaultConfig is the CMake build type used when --config is not set.
	DefaultConfig string `yaml:"defaultConfig,omitempty" toml:"default_config"`
	// Jobs is the default number of parallel build jobs.
	Jobs int `yaml:"jobs,omitempty" toml:"jobs"`
	// Fwd lists cache variables (without -D) always passed to the generator.
	Fwd []string `yaml:"fwd,omitempty" toml:"fwd"`
	// EnvFiles lists .env files merged into the child process environment.
	EnvFiles []string `yaml:"envFiles,omitempty" toml:"env_files"`
	// Env sets variables for child processes; it overrides EnvFiles.
	Env map[string]string `yaml:"env,omitempty" toml:"env"`
	// MinCMakeVersion is the lowest accepted cmake version (e.g. "3.16").
	MinCMakeVersion string `yaml:"minCMakeVersion,omitempty" toml:"min_cmake_version"`
	// Toolchains adds project-specific profiles to the built-in table.
	Toolchains []ToolchainSpec `yaml:"toolchains,omitempty" toml:"toolchains"`

	// BaseDir is the directory of the loaded file, or the working directory.
	BaseDir string `yaml:"-" toml:"-"`
	// Source is the path the config was read from; empty for defaults.
	Source string `yaml:"-" toml:"-"`
}

// ToolchainSpec declares an extra toolchain profile.
type ToolchainSpec struct {
	Name      string `yaml:"name" toml:"name"`
	Generator string `yaml:"generator,omitempty" toml:"generator"`
	Arch      string `yaml:"arch,omitempty" toml:"arch"`
}

// Default returns an empty configuration rooted at baseDir.
func Default(baseDir string) *ProjectConfig {
	return &ProjectConfig{BaseDir: baseDir}
}

// Load reads the project file at path. The format follows the file extension.
func Load(path string) (*ProjectConfig, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", absPath, err)
	}

	var cfg ProjectConfig
	switch strings.ToLower(filepath.Ext(absPath)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %q: %w", absPath, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config %q: %w", absPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse config %q: unknown keys %v", absPath, undecoded)
		}
	default:
		return nil, fmt.Errorf("config %q: unsupported format (use .yaml, .yml or .toml)", absPath)
	}

	cfg.BaseDir = filepath.Dir(absPath)
	cfg.Source = absPath
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", absPath, err)
	}
	return &cfg, nil
}

// Discover loads the first DefaultNames file found in dir, or returns defaults.
func Discover(dir string) (*ProjectConfig, error) {
	for _, name := range DefaultNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("check %s: %w", path, err)
		}
	}
	return Default(dir), nil
}

// Validate checks field values.
func (c *ProjectConfig) Validate() error {
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative, got %d", c.Jobs)
	}
	if _, err := toolchain.NewTable(c.ToolchainEntries()...); err != nil {
		return err
	}
	for _, f := range c.Fwd {
		if strings.HasPrefix(f, "-D") {
			return fmt.Errorf("fwd entry %q must not start with -D", f)
		}
	}
	return nil
}

// ToolchainEntries converts the declared extra profiles.
func (c *ProjectConfig) ToolchainEntries() []toolchain.Toolchain {
	out := make([]toolchain.Toolchain, 0, len(c.Toolchains))
	for _, s := range c.Toolchains {
		out = append(out, toolchain.Toolchain{
			Name:      strings.TrimSpace(s.Name),
			Generator: strings.TrimSpace(s.Generator),
			Arch:      strings.TrimSpace(s.Arch),
		})
	}
	return out
}

// ResolvePath makes p absolute relative to BaseDir.
func (c *ProjectConfig) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// ToolchainsPath returns the directory that holds toolchain files.
func (c *ProjectConfig) ToolchainsPath() string {
	if c.ToolchainsDir == "" {
		return c.BaseDir
	}
	return c.ResolvePath(c.ToolchainsDir)
}

// Environment merges, in increasing priority, the OS environment, EnvFiles, Env and extra.
func (c *ProjectConfig) Environment(extra env.Vars) (env.Vars, error) {
	fileVars, err := env.LoadEnvFiles(c.BaseDir, c.EnvFiles)
	if err != nil {
		return nil, err
	}
	return env.Merge(env.FromOS(), fileVars, env.Vars(c.Env), extra), nil
}
