// Package generate runs the CMake configure step only when it is needed and refuses to
// continue when the generator arguments changed since the last configure.
package generate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/codex-k8s/buildctl/internal/process"
)

const (
	// SavedArgumentsFile stores the one-line form of the last successful generate command.
	SavedArgumentsFile = "saved-arguments"
	// CacheFile is the CMake cache inside the build directory.
	CacheFile = "CMakeCache.txt"
)

// Outcome tells whether the generator ran.
type Outcome int

const (
	// UpToDate means the saved arguments matched and the generator was skipped.
	UpToDate Outcome = iota
	// Generated means the generator ran successfully.
	Generated
)

func (o Outcome) String() string {
	if o == Generated {
		return "generated"
	}
	return "up-to-date"
}

// ArgumentsChangedError is returned when the generate command differs from the saved one.
type ArgumentsChangedError struct {
	Expected string
	Actual   string
	Diff     string
}

func (e *ArgumentsChangedError) Error() string {
	var b strings.Builder
	b.WriteString("\n== WARNING ==\n\n")
	b.WriteString("Looks like cmake arguments changed. You have two options to fix it:\n")
	b.WriteString("  * Remove build directory completely by adding '--clear' (works 100%)\n")
	b.WriteString("  * Run configure again by adding '--reconfig' (you must understand how CMake cache variables works/updated)\n\n")
	b.WriteString(e.Diff)
	return b.String()
}

// IsArgumentsChanged reports whether err is an ArgumentsChangedError.
func IsArgumentsChanged(err error) bool {
	var target *ArgumentsChangedError
	return errors.As(err, &target)
}

// Oneline renders args as `"a" "b" "c"`.
func Oneline(args []string) string {
	return strings.TrimPrefix(process.Oneline(args), " ")
}

// Run configures the build directory. The generator runs when reconfig is set or no
// saved arguments exist; otherwise the saved arguments must match the current ones.
func Run(ctx context.Context, caller process.Caller, args []string, buildDir, tempDir string, reconfig bool) (Outcome, error) {
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return UpToDate, fmt.Errorf("create %s: %w", tempDir, err)
	}
	savedPath := filepath.Join(tempDir, SavedArgumentsFile)
	current := Oneline(args)

	expected, err := os.ReadFile(savedPath)
	switch {
	case reconfig || errors.Is(err, os.ErrNotExist):
		opts := process.CallOptions{CacheFile: filepath.Join(buildDir, CacheFile)}
		if err := caller.Call(ctx, args, opts); err != nil {
			return UpToDate, err
		}
		if err := os.WriteFile(savedPath, []byte(current), 0o644); err != nil {
			return Generated, fmt.Errorf("save generator arguments: %w", err)
		}
		return Generated, nil
	case err != nil:
		return UpToDate, fmt.Errorf("read saved generator arguments: %w", err)
	}

	if string(expected) != current {
		return UpToDate, &ArgumentsChangedError{
			Expected: string(expected),
			Actual:   current,
			Diff:     diffArguments(string(expected), current),
		}
	}
	return UpToDate, nil
}

// diffArguments renders a unified diff with one argument per line.
func diffArguments(expected, actual string) string {
	diff := difflib.UnifiedDiff{
		A:        splitArguments(expected),
		B:        splitArguments(actual),
		FromFile: "saved",
		ToFile:   "current",
		Context:  1,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil || text == "" {
		return fmt.Sprintf("- %s\n+ %s\n", expected, actual)
	}
	return text
}

func splitArguments(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	parts := strings.Split(strings.Trim(line, `"`), `" "`)
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p + "\n"
	}
	return out
}
