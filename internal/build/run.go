package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/danjacques/gofslock/fslock"

	"github.com/codex-k8s/buildctl/internal/buildlog"
	"github.com/codex-k8s/buildctl/internal/cmake"
	"github.com/codex-k8s/buildctl/internal/generate"
	"github.com/codex-k8s/buildctl/internal/process"
	"github.com/codex-k8s/buildctl/internal/timer"
	"github.com/codex-k8s/buildctl/internal/toolchain"
)

// Executor runs the external tools of a build.
type Executor interface {
	process.Caller
	cmake.Capturer
}

// LockHeldError is returned when another build already owns the build directory.
type LockHeldError struct {
	Path string
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("build directory is locked by another process: %s", e.Path)
}

// ToolNotFoundError is returned when a required build tool is not installed.
type ToolNotFoundError struct {
	Tool string
	Err  error
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("%s not found in PATH: %v", e.Tool, e.Err)
}

func (e *ToolNotFoundError) Unwrap() error { return e.Err }

// IsToolNotFound reports whether err is a ToolNotFoundError.
func IsToolNotFound(err error) bool {
	var target *ToolNotFoundError
	return errors.As(err, &target)
}

// IsLockHeld reports whether err is a LockHeldError.
func IsLockHeld(err error) bool {
	var target *LockHeldError
	return errors.As(err, &target)
}

// Result describes a finished (or failed) build.
type Result struct {
	Plan     *Plan
	LogPath  string
	Generate generate.Outcome
	Timer    *timer.Timer
}

// Builder runs a Plan against the real file system.
type Builder struct {
	// Stdout receives the progress transcript; nil means os.Stdout.
	Stdout io.Writer
	// Logger receives diagnostics.
	Logger *slog.Logger
	// Env is the child environment; nil inherits the current process env.
	Env []string
	// GOOS selects host specific behaviour; empty means runtime.GOOS.
	GOOS string
	// NewExecutor builds the tool runner on top of the opened build log.
	// Nil uses a process.Runner.
	NewExecutor func(sink process.Sink) Executor
	// Now is the clock used for step timing; nil means time.Now.
	Now func() time.Time
}

// Run plans and executes one build. The returned Result is non-nil as soon as a plan
// exists so callers can report the build and log locations on failure too.
func (b *Builder) Run(ctx context.Context, opts Options) (*Result, error) {
	plan, err := NewPlan(opts)
	if err != nil {
		return nil, err
	}
	res := &Result{Plan: plan, Timer: timer.New()}
	if b.Now != nil {
		res.Timer = timer.NewWithClock(b.Now)
	}

	if _, err := toolchain.CheckFile(plan.Toolchain, opts.ToolchainsDir); err != nil {
		return res, &ConfigError{Err: err}
	}

	fmt.Fprintf(b.stdout(), "Build dir: %s\n", plan.BuildDir)

	if err := os.MkdirAll(filepath.Dir(plan.LockPath), 0o755); err != nil {
		return res, fmt.Errorf("create %s: %w", filepath.Dir(plan.LockPath), err)
	}
	lock, err := fslock.Lock(plan.LockPath)
	if err != nil {
		if errors.Is(err, fslock.ErrLockHeld) {
			return res, &LockHeldError{Path: plan.LockPath}
		}
		return res, fmt.Errorf("lock %s: %w", plan.LockPath, err)
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil {
			b.logger().Warn("release build lock", "path", plan.LockPath, "err", uerr)
		}
	}()

	if opts.Clear {
		if err := b.clear(plan); err != nil {
			return res, err
		}
	}

	if err := os.MkdirAll(plan.TempDir, 0o755); err != nil {
		return res, fmt.Errorf("create %s: %w", plan.TempDir, err)
	}

	log, err := buildlog.Open(plan.TempDir, opts.Verbose)
	if err != nil {
		return res, err
	}
	defer func() {
		if cerr := log.Close(); cerr != nil {
			b.logger().Warn("close build log", "path", log.Path(), "err", cerr)
		}
	}()
	res.LogPath = log.Path()
	b.logger().Debug("build planned", "toolchain", plan.Toolchain.Name, "build_dir", plan.BuildDir, "log", log.Path())

	exec := b.executor(log)
	if err := b.probe(ctx, exec, opts.MinCMakeVersion); err != nil {
		return res, err
	}

	t := res.Timer
	defer t.Stop()
	t.Start("Generate")
	res.Generate, err = generate.Run(ctx, exec, plan.Generate, plan.BuildDir, plan.TempDir, opts.Reconfig)
	if err != nil {
		return res, err
	}

	if plan.RunBuild {
		t.Start("Build")
		if err := exec.Call(ctx, plan.Build, process.CallOptions{}); err != nil {
			return res, err
		}
	}
	if plan.RunTest {
		t.Start("Test")
		if err := exec.Call(ctx, plan.Test, process.CallOptions{Dir: plan.BuildDir}); err != nil {
			return res, err
		}
		if plan.TestXML != "" {
			if err := collectTestXML(plan.BuildDir, plan.TestXML); err != nil {
				return res, err
			}
		}
	}
	if plan.RunPack {
		t.Start("Pack")
		if err := exec.Call(ctx, plan.Pack, process.CallOptions{Dir: plan.BuildDir}); err != nil {
			return res, err
		}
	}
	t.Stop()

	out := b.stdout()
	fmt.Fprintln(out, "-")
	fmt.Fprintf(out, "Log saved: %s\n", log.Path())
	fmt.Fprintln(out, "-")
	if err := t.Result(out); err != nil {
		return res, err
	}
	if opts.Report != "" {
		if err := t.WriteJSON(opts.Report); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (b *Builder) clear(plan *Plan) error {
	out := b.stdout()
	for _, dir := range []struct{ kind, path string }{
		{"build", plan.BuildDir},
		{"install", plan.InstallDir},
	} {
		if _, err := os.Stat(dir.path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		fmt.Fprintf(out, "Remove %s directory: %s\n", dir.kind, dir.path)
		if err := os.RemoveAll(dir.path); err != nil {
			return fmt.Errorf("remove %s directory: %w", dir.kind, err)
		}
		if _, err := os.Stat(dir.path); err == nil {
			return fmt.Errorf("directory still exists after removal: %s", dir.path)
		}
	}
	return nil
}

func (b *Builder) probe(ctx context.Context, exec Executor, minimum string) error {
	if b.goos() != "windows" {
		if err := exec.Call(ctx, []string{"which", cmake.CMake}, process.CallOptions{}); err != nil {
			if ctx.Err() != nil {
				return err
			}
			return &ToolNotFoundError{Tool: cmake.CMake, Err: err}
		}
	}
	if minimum == "" {
		return exec.Call(ctx, []string{cmake.CMake, "--version"}, process.CallOptions{})
	}
	v, err := cmake.Version(ctx, exec)
	if err != nil {
		return err
	}
	fmt.Fprintf(b.stdout(), "CMake version: %s\n", v)
	if err := cmake.CheckMinimum(v, minimum); err != nil {
		return &ConfigError{Err: err}
	}
	return nil
}

// collectTestXML copies the newest Testing/*/Test.xml written by `ctest -T Test` to dest.
func collectTestXML(buildDir, dest string) error {
	matches, err := filepath.Glob(filepath.Join(buildDir, "Testing", "*", "Test.xml"))
	if err != nil {
		return err
	}
	var (
		newest  string
		newestT time.Time
	)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestT) {
			newest, newestT = m, info.ModTime()
		}
	}
	if newest == "" {
		return fmt.Errorf("ctest did not produce Testing/*/Test.xml in %s", buildDir)
	}
	data, err := os.ReadFile(newest)
	if err != nil {
		return fmt.Errorf("read test results: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(dest), err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("write test results: %w", err)
	}
	return nil
}

func (b *Builder) executor(log *buildlog.Log) Executor {
	if b.NewExecutor != nil {
		return b.NewExecutor(log)
	}
	r := process.NewRunner(log, b.Env, b.logger())
	if b.Stdout != nil {
		r.Stdout = b.Stdout
	}
	return r
}

func (b *Builder) stdout() io.Writer {
	if b.Stdout != nil {
		return b.Stdout
	}
	return os.Stdout
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

func (b *Builder) goos() string {
	if b.GOOS != "" {
		return b.GOOS
	}
	return runtime.GOOS
}
