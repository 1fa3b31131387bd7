// Package build sequences the generate, build, test and pack steps of a CMake project.
package build

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/codex-k8s/buildctl/internal/cmake"
	"github.com/codex-k8s/buildctl/internal/toolchain"
)

// Options describes one build invocation.
type Options struct {
	// Toolchain is the selected profile.
	Toolchain toolchain.Toolchain
	// Config is the CMake build type (Release, Debug, ...). Optional.
	Config string
	// Home is the directory with the top-level CMakeLists.txt. Defaults to WorkDir.
	Home string
	// ToolchainsDir holds <toolchain>.cmake files.
	ToolchainsDir string
	// WorkDir is where build/ and _install/ are created.
	WorkDir string

	Test    bool
	TestXML string
	// Pack is the CPack generator; empty disables packaging.
	Pack string

	NoBuild  bool
	Verbose  bool
	Install  bool
	Strip    bool
	Clear    bool
	Reconfig bool

	// Fwd lists cache variables passed to the generator as -D<entry>.
	Fwd []string
	// Jobs is the number of parallel build jobs; 0 leaves it to the build tool.
	Jobs int

	// Report is an optional path for a JSON timing report.
	Report string
	// MinCMakeVersion rejects older cmake installations when set.
	MinCMakeVersion string
	// CPack is the cpack executable; defaults to "cpack".
	CPack string
}

// Plan is the fully resolved set of directories and commands for a build.
type Plan struct {
	Toolchain     toolchain.Toolchain
	Tag           string
	Home          string
	BuildDir      string
	InstallDir    string
	TempDir       string
	LockPath      string
	ToolchainFile string
	TestXML       string

	LocalInstall bool
	StripInstall bool

	Generate []string
	Build    []string
	Test     []string
	Pack     []string

	RunBuild bool
	RunTest  bool
	RunPack  bool
}

// ConfigError marks invalid options; the CLI maps it to a dedicated exit code.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }

func (e *ConfigError) Unwrap() error { return e.Err }

func configErrorf(format string, args ...any) error {
	return &ConfigError{Err: fmt.Errorf(format, args...)}
}

// IsConfigError reports whether err is a ConfigError.
func IsConfigError(err error) bool {
	var target *ConfigError
	return errors.As(err, &target)
}

// Tag returns the build directory tag: <toolchain>-<config> or <toolchain>.
func Tag(toolchainName, config string) string {
	if config == "" {
		return toolchainName
	}
	return toolchainName + "-" + config
}

// NewPlan resolves opts into directories and command lines without touching the disk.
func NewPlan(opts Options) (*Plan, error) {
	tc := opts.Toolchain
	if err := tc.Validate(); err != nil {
		return nil, &ConfigError{Err: err}
	}
	if opts.WorkDir == "" {
		return nil, configErrorf("work directory is not set")
	}
	if opts.Jobs < 0 {
		return nil, configErrorf("jobs must not be negative, got %d", opts.Jobs)
	}

	p := &Plan{
		Toolchain:     tc,
		Tag:           Tag(tc.Name, opts.Config),
		ToolchainFile: tc.File(opts.ToolchainsDir),
		LocalInstall:  opts.Install,
		StripInstall:  opts.Strip,
		RunBuild:      !opts.NoBuild,
	}
	p.BuildDir = filepath.Join(opts.WorkDir, "build", p.Tag)
	p.InstallDir = filepath.Join(opts.WorkDir, "_install", tc.Name)
	p.TempDir = filepath.Join(p.BuildDir, "logs")
	// Kept next to the build directory so --clear never removes a held lock.
	p.LockPath = filepath.Join(opts.WorkDir, "build", "."+p.Tag+".lock")

	p.Home = opts.Home
	if p.Home == "" {
		p.Home = opts.WorkDir
	} else if !filepath.IsAbs(p.Home) {
		p.Home = filepath.Join(opts.WorkDir, p.Home)
	}

	if opts.Strip {
		if !tc.IsMake() {
			return nil, configErrorf("CMake install/strip targets are only supported for the Unix Makefile generator")
		}
		p.LocalInstall = true
	}

	if opts.TestXML != "" {
		p.TestXML = opts.TestXML
		if !filepath.IsAbs(p.TestXML) {
			p.TestXML = filepath.Join(opts.WorkDir, p.TestXML)
		}
	}
	p.RunTest = p.RunBuild && (opts.Test || opts.TestXML != "")
	p.RunPack = p.RunBuild && opts.Pack != ""

	for _, f := range opts.Fwd {
		if strings.TrimSpace(f) == "" {
			continue
		}
		if strings.HasPrefix(f, "-D") {
			return nil, configErrorf("--fwd %q: pass cache variables without the -D prefix", f)
		}
		if !strings.Contains(f, "=") {
			return nil, configErrorf("--fwd %q: expected NAME=VALUE", f)
		}
	}

	p.Generate = generateCommand(p, opts)
	p.Build = buildCommand(p, opts)
	p.Test = testCommand(p, opts)
	p.Pack = packCommand(opts)
	return p, nil
}

func generateCommand(p *Plan, opts Options) []string {
	cmd := []string{cmake.CMake, "-H" + p.Home, "-B" + p.BuildDir}
	if opts.Config != "" {
		cmd = append(cmd, "-DCMAKE_BUILD_TYPE="+opts.Config)
	}
	if p.Toolchain.Generator != "" {
		cmd = append(cmd, "-G"+p.Toolchain.Generator)
	}
	if platform := p.Toolchain.PlatformFlag(); platform != "" {
		cmd = append(cmd, "-A"+platform)
	}
	cmd = append(cmd,
		"-DCMAKE_TOOLCHAIN_FILE="+p.ToolchainFile,
		"-DCMAKE_VERBOSE_MAKEFILE=ON",
	)
	if p.LocalInstall {
		cmd = append(cmd, "-DCMAKE_INSTALL_PREFIX="+p.InstallDir)
	}
	if opts.Pack != "" {
		cmd = append(cmd, "-DCPACK_GENERATOR="+opts.Pack)
	}
	for _, f := range opts.Fwd {
		if strings.TrimSpace(f) == "" {
			continue
		}
		cmd = append(cmd, "-D"+f)
	}
	return cmd
}

func buildCommand(p *Plan, opts Options) []string {
	cmd := []string{cmake.CMake, "--build", p.BuildDir}
	if opts.Config != "" {
		cmd = append(cmd, "--config", opts.Config)
	}
	if p.LocalInstall {
		target := "install"
		if p.StripInstall {
			target = "install/strip"
		}
		cmd = append(cmd, "--target", target)
	}
	// Everything after "--" goes to the native build tool.
	cmd = append(cmd, "--")
	if opts.Jobs > 0 && p.Toolchain.IsMake() {
		cmd = append(cmd, "-j", strconv.Itoa(opts.Jobs))
	}
	return cmd
}

func testCommand(p *Plan, opts Options) []string {
	cmd := []string{cmake.CTest}
	if opts.Config != "" {
		cmd = append(cmd, "-C", opts.Config)
	}
	cmd = append(cmd, "--output-on-failure")
	if p.TestXML != "" {
		cmd = append(cmd, "-T", "Test")
	}
	if opts.Jobs > 0 {
		cmd = append(cmd, "-j", strconv.Itoa(opts.Jobs))
	}
	return cmd
}

func packCommand(opts Options) []string {
	cpack := opts.CPack
	if cpack == "" {
		cpack = cmake.CPack
	}
	cmd := []string{cpack}
	if opts.Config != "" {
		cmd = append(cmd, "-C", opts.Config)
	}
	cmd = append(cmd, "--verbose")
	if opts.Pack != "" {
		cmd = append(cmd, "-G"+opts.Pack)
	}
	return cmd
}
