// Package process runs external build tools while teeing their output into the build log
// and, in verbose mode, onto the console.
package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"
	"mvdan.cc/sh/v3/syntax"
)

// exitNotStarted is reported when the executable could not be started at all.
const exitNotStarted = 127

// pipeGrace bounds how long the readers wait for output after the context is done.
// Descendants outside the killed process group may still hold the pipes open.
const pipeGrace = 2 * time.Second

// Sink receives the command transcript and child output. *buildlog.Log satisfies it.
type Sink interface {
	io.Writer
	Path() string
	Verbose() bool
}

// CallOptions tweaks a single Call.
type CallOptions struct {
	// CacheFile is removed when the command fails, forcing a clean configure next time.
	CacheFile string
	// Ignore turns a non-zero exit status into success.
	Ignore bool
	// Dir overrides the working directory of the child.
	Dir string
}

// Caller runs one command to completion.
type Caller interface {
	Call(ctx context.Context, args []string, opts CallOptions) error
}

// ExitError reports a command that did not finish successfully.
type ExitError struct {
	// Code is the exit status; 127 when the executable could not be started,
	// -1 when the process was killed by a signal.
	Code int
	// Command is the one-line form of the invocation.
	Command string
	// Log is the path of the build log holding the full output.
	Log string
	// Err is the underlying error from os/exec.
	Err error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exit with status %d:%s", e.Code, e.Command)
}

func (e *ExitError) Unwrap() error { return e.Err }

// AsExitError extracts an ExitError from err.
func AsExitError(err error) (*ExitError, bool) {
	var target *ExitError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Runner executes commands with teed output.
type Runner struct {
	// Sink is the build log. Required.
	Sink Sink
	// Stdout and Stderr are the console streams; nil means os.Stdout / os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
	// Env is the complete child environment; nil inherits the current process env.
	Env []string
	// Dir is the default working directory; empty means the current directory.
	Dir string
	// Logger receives diagnostics about the runner itself.
	Logger *slog.Logger

	consoleMu sync.Mutex
}

// NewRunner constructs a Runner writing to sink and the process console.
func NewRunner(sink Sink, env []string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Sink:   sink,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Env:    env,
		Logger: logger,
	}
}

// Call prints the command, runs it with both output streams teed, and returns an
// *ExitError when it fails. On failure opts.CacheFile is removed.
func (r *Runner) Call(ctx context.Context, args []string, opts CallOptions) error {
	if len(args) == 0 {
		return errors.New("empty command")
	}

	dir := r.workDir(opts.Dir)
	pretty := Pretty(args)
	r.console(r.stdout(), pretty+"\n")
	r.log(pretty)

	oneline := fmt.Sprintf("[%s]>%s\n", dir, Oneline(args))
	if r.Sink.Verbose() {
		r.console(r.stdout(), oneline+"\n")
	}
	r.log(oneline)
	r.log("# " + ShellLine(dir, args) + "\n")

	code, runErr := r.teedCall(ctx, args, opts.Dir)
	if code == 0 && runErr == nil {
		return nil
	}
	if opts.Ignore && ctx.Err() == nil {
		r.Logger.Debug("ignoring command failure", "cmd", args[0], "code", code)
		return nil
	}

	if opts.CacheFile != "" {
		if err := os.Remove(opts.CacheFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.Logger.Warn("failed to remove cache file", "path", opts.CacheFile, "error", err)
		}
	}

	trimmed := strings.TrimSuffix(oneline, "\n")
	report := fmt.Sprintf("Command exit with status \"%d\": %s\nLog: %s\n", code, trimmed, r.Sink.Path())
	r.console(r.stdout(), report)
	r.log(report)

	if ctxErr := ctx.Err(); ctxErr != nil {
		runErr = errors.Join(ctxErr, runErr)
	}
	return &ExitError{Code: code, Command: Oneline(args), Log: r.Sink.Path(), Err: runErr}
}

// Capture runs args and returns its stdout. Stderr goes to the build log.
func (r *Runner) Capture(ctx context.Context, args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}
	r.log(fmt.Sprintf("[%s]>%s\n", r.workDir(""), Oneline(args)))

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Env = r.Env
	cmd.Dir = r.Dir
	cmd.Stderr = r.Sink
	cmd.WaitDelay = pipeGrace
	setProcessGroup(cmd)
	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s: %w", Oneline(args), err)
	}
	_, _ = r.Sink.Write(out)
	return out, nil
}

// teedCall starts the child and joins both pipe readers before waiting for it.
func (r *Runner) teedCall(ctx context.Context, args []string, dir string) (int, error) {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Env = r.Env
	cmd.Dir = r.Dir
	if dir != "" {
		cmd.Dir = dir
	}
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return exitNotStarted, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return exitNotStarted, err
	}
	if err := cmd.Start(); err != nil {
		r.log(fmt.Sprintf("failed to start %s: %v\n", args[0], err))
		return exitNotStarted, err
	}

	readersDone := make(chan struct{})
	go func() {
		select {
		case <-readersDone:
			return
		case <-ctx.Done():
		}
		select {
		case <-readersDone:
		case <-time.After(pipeGrace):
			// Unblocks the readers; fanout treats os.ErrClosed as end of stream.
			_ = stdout.Close()
			_ = stderr.Close()
		}
	}()

	verbose := r.Sink.Verbose()
	var g errgroup.Group
	g.Go(func() error { return r.fanout(stdout, verbose, r.stdout()) })
	g.Go(func() error { return r.fanout(stderr, verbose, r.stderr()) })
	readErr := g.Wait()
	close(readersDone)

	waitErr := cmd.Wait()
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return exitErr.ExitCode(), waitErr
		}
		return 1, waitErr
	}
	if readErr != nil {
		return 1, fmt.Errorf("read output of %s: %w", args[0], readErr)
	}
	return 0, nil
}

// fanout copies normalized lines from in to the log and, when verbose, to console.
func (r *Runner) fanout(in io.Reader, verbose bool, console io.Writer) error {
	// The pipe is drained even after a log write fails so the child never blocks.
	var writeErr error
	br := bufio.NewReader(in)
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			s := NormalizeLine(line)
			if writeErr == nil {
				_, writeErr = io.WriteString(r.Sink, s)
			}
			if verbose {
				r.console(console, s)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return writeErr
			}
			return err
		}
	}
}

func (r *Runner) console(w io.Writer, s string) {
	r.consoleMu.Lock()
	defer r.consoleMu.Unlock()
	_, _ = io.WriteString(w, s)
}

func (r *Runner) log(s string) {
	if _, err := io.WriteString(r.Sink, s); err != nil {
		r.Logger.Warn("failed to write build log", "path", r.Sink.Path(), "error", err)
	}
}

func (r *Runner) stdout() io.Writer {
	if r.Stdout == nil {
		return os.Stdout
	}
	return r.Stdout
}

func (r *Runner) stderr() io.Writer {
	if r.Stderr == nil {
		return os.Stderr
	}
	return r.Stderr
}

func (r *Runner) workDir(override string) string {
	switch {
	case override != "":
		return override
	case r.Dir != "":
		return r.Dir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// NormalizeLine drops carriage returns, expands tabs to two spaces and strips trailing
// whitespace, returning the line with a single trailing newline.
func NormalizeLine(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\t", "  ")
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	return s + "\n"
}

// Pretty renders the multi-line "Execute command" block.
func Pretty(args []string) string {
	var b strings.Builder
	b.WriteString("Execute command: [\n")
	for _, a := range args {
		fmt.Fprintf(&b, "  `%s`\n", a)
	}
	b.WriteString("]\n")
	return b.String()
}

// Oneline renders args as ` "a" "b"`, each argument double-quoted with a leading space.
func Oneline(args []string) string {
	var b strings.Builder
	for _, a := range args {
		fmt.Fprintf(&b, " \"%s\"", a)
	}
	return b.String()
}

// ShellLine renders a copy-pasteable bash command that reproduces the call.
func ShellLine(dir string, args []string) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return fmt.Sprintf("cd %s && %s", shellQuote(dir), strings.Join(parts, " "))
}

func shellQuote(s string) string {
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		return fmt.Sprintf("%q", s)
	}
	return q
}
