package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/buildctl/internal/build"
	"github.com/codex-k8s/buildctl/internal/config"
	"github.com/codex-k8s/buildctl/internal/logging"
	"github.com/codex-k8s/buildctl/internal/process"
	"github.com/codex-k8s/buildctl/internal/toolchain"
)

func quietLogger() *logging.Writer {
	return logging.NewWriter(logging.NewLogger(io.Discard, logging.LevelError), "test")
}

func clearBuildEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"BUILDCTL_TOOLCHAIN", "BUILDCTL_CONFIG", "BUILDCTL_TOOLCHAINS_DIR", "BUILDCTL_JOBS",
		"BUILDCTL_FWD", "BUILDCTL_PROJECT_CONFIG", "BUILDCTL_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain", errors.New("boom"), ExitFailure},
		{"tool exit", &process.ExitError{Code: 2}, ExitFailure},
		{"config wrapper", configErr(errors.New("bad flag")), ExitConfigError},
		{"build config", &build.ConfigError{Err: errors.New("strip")}, ExitConfigError},
		{"unknown toolchain", fmt.Errorf("resolve: %w", &toolchain.NotFoundError{Name: "x"}), ExitConfigError},
		{"unspecified toolchain", toolchain.ErrUnspecified, ExitConfigError},
		{"lock held", &build.LockHeldError{Path: "/b/.lock"}, ExitEnvError},
		{"cmake not installed", &build.ToolNotFoundError{Tool: "cmake", Err: &process.ExitError{Code: 1}}, ExitEnvError},
		{"missing tool", &process.ExitError{Code: 127, Err: &exec.Error{Name: "cmake", Err: exec.ErrNotFound}}, ExitEnvError},
		{"env wrapper", envErr(errors.New("no cwd")), ExitEnvError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExitCode(tc.err))
		})
	}
}

func TestColor(t *testing.T) {
	plain := &Options{NoColor: true}
	assert.Equal(t, "SUCCESS", plain.color("[green][bold]SUCCESS"))

	colored := &Options{}
	out := colored.color("[red]*** FAILED ***")
	assert.True(t, strings.HasPrefix(out, "\033[31m"))
	assert.Contains(t, out, "*** FAILED ***")
}

func parseBuildFlags(t *testing.T, goos string, args ...string) (*pflag.FlagSet, *buildFlags) {
	t.Helper()
	f := &buildFlags{}
	fs := pflag.NewFlagSet("build", pflag.ContinueOnError)
	bindBuildFlags(fs, f, goos)
	require.NoError(t, fs.Parse(args))
	return fs, f
}

func TestResolveBuildOptionsPriority(t *testing.T) {
	clearBuildEnv(t)
	wd := t.TempDir()
	chdirForTest(t, wd)

	proj := config.Default(wd)
	proj.DefaultToolchain = "gcc"
	proj.DefaultConfig = "Release"
	proj.Jobs = 2
	proj.Fwd = []string{"FROM_PROJECT=1"}
	proj.Home = "src"

	t.Setenv("BUILDCTL_TOOLCHAIN", "clang")
	t.Setenv("BUILDCTL_FWD", "FROM_ENV=1")
	t.Setenv("BUILDCTL_JOBS", "6")

	opts := &Options{GOOS: "linux"}
	fs, f := parseBuildFlags(t, "linux", "--config", "Debug", "--fwd", "FROM_FLAG=1", "--env", "CC=gcc-13", "--test")

	bopts, extra, err := resolveBuildOptions(fs, opts, proj, f)
	require.NoError(t, err)

	assert.Equal(t, "clang", bopts.Toolchain.Name)
	assert.Equal(t, "Debug", bopts.Config)
	assert.Equal(t, 6, bopts.Jobs)
	assert.Equal(t, []string{"FROM_PROJECT=1", "FROM_ENV=1", "FROM_FLAG=1"}, bopts.Fwd)
	assert.Equal(t, filepath.Join(wd, "src"), bopts.Home)
	assert.Equal(t, wd, bopts.ToolchainsDir)
	assert.True(t, bopts.Test)
	assert.Equal(t, "gcc-13", extra["CC"])

	fs, f = parseBuildFlags(t, "linux", "--toolchain", "gcc", "-j", "3")
	bopts, _, err = resolveBuildOptions(fs, opts, proj, f)
	require.NoError(t, err)
	assert.Equal(t, "gcc", bopts.Toolchain.Name)
	assert.Equal(t, "Release", bopts.Config)
	assert.Equal(t, 3, bopts.Jobs)
}

func TestResolveBuildOptionsFwdKeepsCommas(t *testing.T) {
	clearBuildEnv(t)
	wd := t.TempDir()
	chdirForTest(t, wd)
	proj := config.Default(wd)
	opts := &Options{GOOS: "linux"}

	t.Setenv("BUILDCTL_FWD", "CMAKE_SHARED_LINKER_FLAGS=-Wl,--as-needed\nA=x,B=y")
	fs, f := parseBuildFlags(t, "linux", "--toolchain", "gcc",
		"--fwd", "CMAKE_EXE_LINKER_FLAGS=-Wl,-z,now",
		"--fwd", "LIST=a,b")

	bopts, _, err := resolveBuildOptions(fs, opts, proj, f)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"CMAKE_SHARED_LINKER_FLAGS=-Wl,--as-needed",
		"A=x,B=y",
		"CMAKE_EXE_LINKER_FLAGS=-Wl,-z,now",
		"LIST=a,b",
	}, bopts.Fwd)

	plan, err := build.NewPlan(bopts)
	require.NoError(t, err)
	assert.Contains(t, plan.Generate, "-DCMAKE_EXE_LINKER_FLAGS=-Wl,-z,now")
}

func TestResolveBuildOptionsPack(t *testing.T) {
	clearBuildEnv(t)
	wd := t.TempDir()
	chdirForTest(t, wd)
	proj := config.Default(wd)
	opts := &Options{GOOS: "linux"}

	fs, f := parseBuildFlags(t, "linux", "--toolchain", "gcc", "--pack")
	bopts, _, err := resolveBuildOptions(fs, opts, proj, f)
	require.NoError(t, err)
	assert.Equal(t, "RPM", bopts.Pack)
	assert.Equal(t, "cpack", bopts.CPack)

	fs, f = parseBuildFlags(t, "linux", "--toolchain", "gcc", "--pack=ZIP")
	_, _, err = resolveBuildOptions(fs, opts, proj, f)
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

func TestPackFlagNeedsAttachedGenerator(t *testing.T) {
	fs, f := parseBuildFlags(t, "linux", "--pack=DEB")
	assert.Equal(t, "DEB", f.pack)
	assert.Contains(t, fs.Lookup("pack").Usage, "--pack=GEN")

	fs, f = parseBuildFlags(t, "linux", "--pack", "DEB")
	assert.Equal(t, "RPM", f.pack)
	assert.Equal(t, []string{"DEB"}, fs.Args())
}

func TestResolveBuildOptionsToolchainErrors(t *testing.T) {
	clearBuildEnv(t)
	wd := t.TempDir()
	chdirForTest(t, wd)
	proj := config.Default(wd)
	opts := &Options{GOOS: "linux"}

	fs, f := parseBuildFlags(t, "linux")
	_, _, err := resolveBuildOptions(fs, opts, proj, f)
	require.Error(t, err)
	assert.ErrorIs(t, err, toolchain.ErrUnspecified)
	assert.Equal(t, ExitConfigError, ExitCode(err))

	fs, f = parseBuildFlags(t, "linux", "--toolchain", "vs-17-2022")
	_, _, err = resolveBuildOptions(fs, opts, proj, f)
	require.Error(t, err)
	assert.True(t, toolchain.IsNotFound(err))
}

func TestToolchainsCommandListsProjectProfiles(t *testing.T) {
	clearBuildEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "buildctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("toolchains:\n  - name: cross-arm\n    generator: Ninja\n"), 0o644))

	var out bytes.Buffer
	opts := &Options{Stdout: &out, GOOS: "linux"}
	err := ExecuteWith(context.Background(), opts, []string{"toolchains", "--project-config", path, "--no-color"}, nil)
	require.NoError(t, err)

	text := out.String()
	assert.True(t, strings.HasPrefix(text, "NAME"))
	assert.Contains(t, text, "cross-arm")
	assert.Contains(t, text, "Ninja")
	assert.Contains(t, text, "sanitize-thread")
	assert.NotContains(t, text, "vs-17-2022")
}

func TestUnknownFlagIsConfigError(t *testing.T) {
	err := ExecuteWith(context.Background(), &Options{Stdout: io.Discard}, []string{"build", "--no-such-flag"}, nil)
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

func TestCIRequiresToolchainAndConfig(t *testing.T) {
	clearBuildEnv(t)
	t.Setenv("TOOLCHAIN", "")
	t.Setenv("CONFIG", "Debug")

	err := ExecuteWith(context.Background(), &Options{Stdout: io.Discard}, []string{"ci"}, nil)
	require.Error(t, err)
	assert.EqualError(t, err, "environment variable TOOLCHAIN is empty")
	assert.Equal(t, ExitConfigError, ExitCode(err))

	t.Setenv("TOOLCHAIN", "gcc")
	t.Setenv("CONFIG", "")
	err = ExecuteWith(context.Background(), &Options{Stdout: io.Discard}, []string{"ci"}, nil)
	assert.EqualError(t, err, "environment variable CONFIG is empty")
}

func TestPublishCIResult(t *testing.T) {
	output := filepath.Join(t.TempDir(), "output")
	t.Setenv("GITHUB_OUTPUT", output)
	t.Setenv("GITHUB_STEP_SUMMARY", "")

	plan, err := build.NewPlan(build.Options{
		Toolchain: toolchain.Toolchain{Name: "gcc", Generator: "Unix Makefiles"},
		Config:    "Debug",
		WorkDir:   "/w",
	})
	require.NoError(t, err)

	res := &build.Result{Plan: plan, LogPath: "/w/build/gcc-Debug/logs/log.txt"}
	require.NoError(t, publishCIResult(res, errors.New("command exit with status 2")))

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "build_dir="+plan.BuildDir+"\n"+
		"error=command exit with status 2\n"+
		"log_path=/w/build/gcc-Debug/logs/log.txt\n"+
		"status=failure\n", string(data))
}

type fakeLookPath map[string]bool

func (f fakeLookPath) lookPath(name string) (string, error) {
	if f[name] {
		return "/usr/bin/" + name, nil
	}
	return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
}

func fakeVersion(text string) func(context.Context, io.Writer) error {
	return func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, text)
		return err
	}
}

func TestDoctor(t *testing.T) {
	logger := logging.NewLogger(io.Discard, logging.LevelError)
	table, err := toolchain.NewTable(
		toolchain.Toolchain{Name: "gcc", Generator: "Unix Makefiles"},
		toolchain.Toolchain{Name: "clang", Generator: "Unix Makefiles"},
	)
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gcc.cmake"), nil, 0o644))

	all := fakeLookPath{"cmake": true, "ctest": true, "cpack": true}

	t.Run("ok", func(t *testing.T) {
		d := &doctor{logger: quietLogger(), lookPath: all.lookPath, version: fakeVersion("cmake version 3.28.1\n")}
		require.NoError(t, d.run(context.Background(), logger, table, dir, "3.16"))
	})

	t.Run("missing tool", func(t *testing.T) {
		d := &doctor{logger: quietLogger(), lookPath: fakeLookPath{"cmake": true}.lookPath, version: fakeVersion("")}
		err := d.run(context.Background(), logger, table, dir, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ctest, cpack")
		assert.Equal(t, ExitEnvError, ExitCode(err))
	})

	t.Run("too old", func(t *testing.T) {
		d := &doctor{logger: quietLogger(), lookPath: all.lookPath, version: fakeVersion("cmake version 3.10.2\n")}
		err := d.run(context.Background(), logger, table, dir, "3.16")
		require.Error(t, err)
		assert.Equal(t, ExitConfigError, ExitCode(err))
	})

	t.Run("no toolchain files", func(t *testing.T) {
		d := &doctor{logger: quietLogger(), lookPath: all.lookPath, version: fakeVersion("cmake version 3.28.1\n")}
		err := d.run(context.Background(), logger, table, t.TempDir(), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no toolchain files found")
	})
}

// chdirForTest mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdirForTest(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
