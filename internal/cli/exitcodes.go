package cli

import (
	"errors"
	"os/exec"

	"github.com/codex-k8s/buildctl/internal/build"
	"github.com/codex-k8s/buildctl/internal/toolchain"
)

// Exit codes returned by the buildctl binary.
const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess = 0
	// ExitFailure indicates a runtime failure (a tool exited non-zero, stale arguments, ...).
	ExitFailure = 1
	// ExitConfigError indicates invalid flags, project config or toolchain selection.
	ExitConfigError = 2
	// ExitEnvError indicates a host problem (missing tool, locked build directory, ...).
	ExitEnvError = 3
)

type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }

func (e *codedError) Unwrap() error { return e.err }

func configErr(err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: ExitConfigError, err: err}
}

func envErr(err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: ExitEnvError, err: err}
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code
	}
	switch {
	case build.IsConfigError(err),
		toolchain.IsNotFound(err),
		errors.Is(err, toolchain.ErrUnspecified):
		return ExitConfigError
	case build.IsLockHeld(err),
		build.IsToolNotFound(err),
		errors.Is(err, exec.ErrNotFound):
		return ExitEnvError
	}
	return ExitFailure
}
